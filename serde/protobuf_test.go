//go:build unit

package serde_test

import (
	"testing"

	"github.com/hugolhafner/streambind/serde"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func TestProtobufSerde_Serialize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		input *wrapperspb.StringValue
	}{
		{
			name:  "simple string value",
			input: wrapperspb.String("hello world"),
		},
		{
			name:  "empty string value",
			input: wrapperspb.String(""),
		},
		{
			name:  "nil message",
			input: nil,
		},
	}

	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				t.Parallel()
				s := serde.Protobuf[*wrapperspb.StringValue]()
				output, err := s.Serialize("test-topic", tt.input)
				require.NoError(t, err)

				expected, err := proto.Marshal(tt.input)
				require.NoError(t, err)
				require.Equal(t, expected, output)
			},
		)
	}
}

func TestProtobufSerde_Deserialize(t *testing.T) {
	t.Parallel()

	original := wrapperspb.String("hello world")
	data, err := proto.Marshal(original)
	require.NoError(t, err)

	s := serde.Protobuf[*wrapperspb.StringValue]()
	output, err := s.Deserialize("test-topic", data)
	require.NoError(t, err)
	require.NotNil(t, output)
	require.Equal(t, original.GetValue(), output.GetValue())
}

func TestProtobufSerde_DeserializeInvalid(t *testing.T) {
	t.Parallel()

	s := serde.Protobuf[*timestamppb.Timestamp]()
	_, err := s.Deserialize("test-topic", []byte{0xff, 0xff, 0xff, 0xff})
	require.Error(t, err)
}
