package serde

import (
	"google.golang.org/protobuf/proto"
)

type protobufSerde[T proto.Message] struct{}

func Protobuf[T proto.Message]() Serde[T] {
	return protobufSerde[T]{}
}

func (s protobufSerde[T]) Serialize(topic string, value T) ([]byte, error) {
	return proto.Marshal(value)
}

func (s protobufSerde[T]) Deserialize(topic string, data []byte) (T, error) {
	var zero T
	msg := zero.ProtoReflect().New().Interface()
	if err := proto.Unmarshal(data, msg); err != nil {
		return zero, err
	}
	return msg.(T), nil
}
