package adminpb

import (
	"fmt"

	gogoproto "github.com/gogo/protobuf/proto"
	"google.golang.org/grpc/encoding"
)

// gogoCodec overrides grpc-go's default "proto" codec with one backed by
// gogo/protobuf's reflection-based Marshal/Unmarshal, since the message
// types in this package are hand-tagged structs rather than protoc-go
// output. Registered under the same name ("proto") so grpc.Dial / a plain
// grpc.Server pick it up without extra options, the pattern gogo's own
// grpc integration example uses.
type gogoCodec struct{}

func (gogoCodec) Name() string { return "proto" }

func (gogoCodec) Marshal(v interface{}) ([]byte, error) {
	msg, ok := v.(gogoproto.Message)
	if !ok {
		return nil, fmt.Errorf("adminpb: %T does not implement gogo proto.Message", v)
	}
	return gogoproto.Marshal(msg)
}

func (gogoCodec) Unmarshal(data []byte, v interface{}) error {
	msg, ok := v.(gogoproto.Message)
	if !ok {
		return fmt.Errorf("adminpb: %T does not implement gogo proto.Message", v)
	}
	return gogoproto.Unmarshal(data, msg)
}

func init() {
	encoding.RegisterCodec(gogoCodec{})
}
