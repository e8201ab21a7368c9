// Copyright (C) 2020 Storj Labs, Inc.
// See LICENSE for copying information.

package pb

import (
	proto "github.com/gogo/protobuf/proto"
	"github.com/zeebo/errs"
	"google.golang.org/grpc/encoding"
)

// CodecName is the grpc content-subtype used by the object manager service.
const CodecName = "gogoproto"

// MessageOverhead is the room reserved for the fields of a PushRequest
// besides its payload.
const MessageOverhead = 64 * 1024

// MaxMessageSize returns the largest message the transport must carry for
// chunks of chunkSize bytes.
func MaxMessageSize(chunkSize int) int {
	return chunkSize + MessageOverhead
}

// Error is the error class for encoding failures.
var Error = errs.Class("pb")

// Marshal encodes a message.
func Marshal(msg proto.Message) ([]byte, error) {
	data, err := proto.Marshal(msg)
	return data, Error.Wrap(err)
}

// Unmarshal decodes data into msg.
func Unmarshal(data []byte, msg proto.Message) error {
	return Error.Wrap(proto.Unmarshal(data, msg))
}

type codec struct{}

func (codec) Name() string { return CodecName }

func (codec) Marshal(v interface{}) ([]byte, error) {
	msg, ok := v.(proto.Message)
	if !ok {
		return nil, Error.New("%T is not a proto message", v)
	}
	return Marshal(msg)
}

func (codec) Unmarshal(data []byte, v interface{}) error {
	msg, ok := v.(proto.Message)
	if !ok {
		return Error.New("%T is not a proto message", v)
	}
	return Unmarshal(data, msg)
}

func init() {
	encoding.RegisterCodec(codec{})
}
