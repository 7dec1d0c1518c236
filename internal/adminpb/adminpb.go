// Package adminpb defines the wire messages exchanged between metad and a
// storage node's admin-facing RPC endpoint (spec §4.B). There is no protoc
// toolchain available to this build, so the messages are hand-tagged for
// github.com/gogo/protobuf/proto's reflection-based marshaler instead of
// generated from a .proto file, the same shortcut the teacher's own
// proto/metapb package takes (its message types are hand-written Go structs,
// not protoc output).
package adminpb

import "fmt"

// MovePartitionRequest asks a storage node to migrate one partition's
// replica from src to dst, covering the CHANGE_LEADER through
// MEMBER_CHANGE_REMOVE steps of spec §4.C in one RPC.
type MovePartitionRequest struct {
	RequestId   string `protobuf:"bytes,1,opt,name=request_id" json:"request_id,omitempty"`
	SpaceId     uint32 `protobuf:"varint,2,opt,name=space_id" json:"space_id,omitempty"`
	PartitionId uint32 `protobuf:"varint,3,opt,name=partition_id" json:"partition_id,omitempty"`
	SrcIp       uint32 `protobuf:"varint,4,opt,name=src_ip" json:"src_ip,omitempty"`
	SrcPort     uint32 `protobuf:"varint,5,opt,name=src_port" json:"src_port,omitempty"`
	DstIp       uint32 `protobuf:"varint,6,opt,name=dst_ip" json:"dst_ip,omitempty"`
	DstPort     uint32 `protobuf:"varint,7,opt,name=dst_port" json:"dst_port,omitempty"`
}

func (m *MovePartitionRequest) Reset()         { *m = MovePartitionRequest{} }
func (m *MovePartitionRequest) String() string { return fmt.Sprintf("%+v", *m) }
func (*MovePartitionRequest) ProtoMessage()    {}

// RespCode mirrors the teacher's proto/metapb response-code convention.
type RespCode uint16

const (
	RespOK          RespCode = 0
	RespServerError RespCode = 500
	RespNotLeader   RespCode = 602
)

// MovePartitionResponse carries the result of a move.
type MovePartitionResponse struct {
	Code    RespCode `protobuf:"varint,1,opt,name=code" json:"code,omitempty"`
	Message string   `protobuf:"bytes,2,opt,name=message" json:"message,omitempty"`
}

func (m *MovePartitionResponse) Reset()         { *m = MovePartitionResponse{} }
func (m *MovePartitionResponse) String() string { return fmt.Sprintf("%+v", *m) }
func (*MovePartitionResponse) ProtoMessage()    {}
