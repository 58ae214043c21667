// Package serde holds the payload-conversion collaborators applications plug
// into the edges of a binding. The binder core treats keys and values as
// opaque bytes; conversion policy lives entirely here.
package serde

type Serde[T any] interface {
	Serializer[T]
	Deserializer[T]
}

type Serializer[T any] interface {
	Serialize(topic string, value T) ([]byte, error)
}

type Deserializer[T any] interface {
	Deserialize(topic string, data []byte) (T, error)
}
