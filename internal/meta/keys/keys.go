// Package keys implements the bit-exact KV key/value layout of spec §6.
// Every byte of every key and value written by the metadata control plane
// is produced and parsed here, so the rest of the packages never touch the
// wire format directly — mirroring the teacher's topo package, which keeps
// all path-building behind topo_*.go helpers instead of scattering
// path.Join calls through gm/.
package keys

import (
	"encoding/binary"
	"fmt"

	"github.com/fgr-araujo/nebula/internal/meta/cluster"
)

// Key tags (spec §6).
const (
	TagAllocation = 0x01
	TagHost       = 0x02
	TagPlanHeader = 0x10
	TagTaskRecord = 0x11
	TagConfigItem = 0x20
)

// AllocationKey encodes 0x01 | space_id(4) | partition_id(4).
func AllocationKey(space cluster.SpaceID, partition cluster.PartitionID) []byte {
	b := make([]byte, 1+4+4)
	b[0] = TagAllocation
	binary.BigEndian.PutUint32(b[1:5], uint32(space))
	binary.BigEndian.PutUint32(b[5:9], uint32(partition))
	return b
}

// AllocationPrefix returns the scan prefix covering every partition of the
// given space.
func AllocationPrefix(space cluster.SpaceID) []byte {
	b := make([]byte, 1+4)
	b[0] = TagAllocation
	binary.BigEndian.PutUint32(b[1:5], uint32(space))
	return b
}

// DecodeAllocationKey parses an AllocationKey back into its components.
func DecodeAllocationKey(key []byte) (space cluster.SpaceID, partition cluster.PartitionID, err error) {
	if len(key) != 9 || key[0] != TagAllocation {
		return 0, 0, fmt.Errorf("keys: malformed allocation key %x", key)
	}
	return cluster.SpaceID(binary.BigEndian.Uint32(key[1:5])),
		cluster.PartitionID(binary.BigEndian.Uint32(key[5:9])), nil
}

// EncodeAllocationValue packs a peer set as a sequence of host_ip(4) |
// host_port(4) entries.
func EncodeAllocationValue(peers []cluster.HostAddr) []byte {
	b := make([]byte, 0, len(peers)*8)
	for _, h := range peers {
		var buf [8]byte
		binary.BigEndian.PutUint32(buf[0:4], h.IP)
		binary.BigEndian.PutUint32(buf[4:8], h.Port)
		b = append(b, buf[:]...)
	}
	return b
}

// DecodeAllocationValue unpacks the peer set encoded by EncodeAllocationValue.
func DecodeAllocationValue(value []byte) ([]cluster.HostAddr, error) {
	if len(value)%8 != 0 {
		return nil, fmt.Errorf("keys: malformed allocation value of length %d", len(value))
	}
	peers := make([]cluster.HostAddr, 0, len(value)/8)
	for i := 0; i < len(value); i += 8 {
		peers = append(peers, cluster.HostAddr{
			IP:   binary.BigEndian.Uint32(value[i : i+4]),
			Port: binary.BigEndian.Uint32(value[i+4 : i+8]),
		})
	}
	return peers, nil
}

// HostKey encodes 0x02 | host_ip(4) | host_port(4).
func HostKey(host cluster.HostAddr) []byte {
	b := make([]byte, 1+4+4)
	b[0] = TagHost
	binary.BigEndian.PutUint32(b[1:5], host.IP)
	binary.BigEndian.PutUint32(b[5:9], host.Port)
	return b
}

// HostPrefix is the scan prefix covering every registered host.
func HostPrefix() []byte {
	return []byte{TagHost}
}

// DecodeHostKey parses a HostKey back into a HostAddr.
func DecodeHostKey(key []byte) (cluster.HostAddr, error) {
	if len(key) != 9 || key[0] != TagHost {
		return cluster.HostAddr{}, fmt.Errorf("keys: malformed host key %x", key)
	}
	return cluster.HostAddr{
		IP:   binary.BigEndian.Uint32(key[1:5]),
		Port: binary.BigEndian.Uint32(key[5:9]),
	}, nil
}

// EncodeHeartbeatValue stores the last heartbeat as little-endian
// nanoseconds since epoch, per spec §6.
func EncodeHeartbeatValue(lastHeartbeatNanos int64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(lastHeartbeatNanos))
	return b
}

// DecodeHeartbeatValue is the inverse of EncodeHeartbeatValue.
func DecodeHeartbeatValue(value []byte) (int64, error) {
	if len(value) != 8 {
		return 0, fmt.Errorf("keys: malformed heartbeat value of length %d", len(value))
	}
	return int64(binary.LittleEndian.Uint64(value)), nil
}

// PlanHeaderKey encodes 0x10 | plan_id(8).
func PlanHeaderKey(planID uint64) []byte {
	b := make([]byte, 1+8)
	b[0] = TagPlanHeader
	binary.BigEndian.PutUint64(b[1:9], planID)
	return b
}

// PlanHeaderPrefix is the scan prefix covering every plan header, used by
// recovery to find the most recent plan.
func PlanHeaderPrefix() []byte {
	return []byte{TagPlanHeader}
}

// DecodePlanHeaderKey extracts the plan id from a PlanHeaderKey.
func DecodePlanHeaderKey(key []byte) (uint64, error) {
	if len(key) != 9 || key[0] != TagPlanHeader {
		return 0, fmt.Errorf("keys: malformed plan header key %x", key)
	}
	return binary.BigEndian.Uint64(key[1:9]), nil
}

// PlanStatus is the wire encoding of a plan's status byte.
type PlanStatus byte

const (
	PlanInProgress PlanStatus = iota
	PlanSucceeded
	PlanFailed
)

// EncodePlanHeaderValue packs status(1) | task_count(4).
func EncodePlanHeaderValue(status PlanStatus, taskCount uint32) []byte {
	b := make([]byte, 1+4)
	b[0] = byte(status)
	binary.BigEndian.PutUint32(b[1:5], taskCount)
	return b
}

// DecodePlanHeaderValue is the inverse of EncodePlanHeaderValue.
func DecodePlanHeaderValue(value []byte) (status PlanStatus, taskCount uint32, err error) {
	if len(value) != 5 {
		return 0, 0, fmt.Errorf("keys: malformed plan header value of length %d", len(value))
	}
	return PlanStatus(value[0]), binary.BigEndian.Uint32(value[1:5]), nil
}

// TaskKey encodes 0x11 | plan_id(8) | task_index(4).
func TaskKey(planID uint64, taskIndex uint32) []byte {
	b := make([]byte, 1+8+4)
	b[0] = TagTaskRecord
	binary.BigEndian.PutUint64(b[1:9], planID)
	binary.BigEndian.PutUint32(b[9:13], taskIndex)
	return b
}

// TaskPrefix is the scan prefix covering every task record of one plan.
func TaskPrefix(planID uint64) []byte {
	b := make([]byte, 1+8)
	b[0] = TagTaskRecord
	binary.BigEndian.PutUint64(b[1:9], planID)
	return b
}

// TaskState is the wire encoding of a task's state byte (spec §4.C).
type TaskState byte

const (
	TaskStart TaskState = iota
	TaskChangeLeader
	TaskAddPart
	TaskAddLearner
	TaskCatchUpData
	TaskMemberChangeAdd
	TaskMemberChangeRemove
	TaskUpdatePartMeta
	TaskRemovePart
	TaskEnd
)

// TaskStatus is the wire encoding of a task's status byte.
type TaskStatus byte

const (
	TaskRunning TaskStatus = iota
	TaskSucceeded
	TaskFailed
)

// TaskRecord is the decoded form of a 0x11 value.
type TaskRecord struct {
	State     TaskState
	Status    TaskStatus
	Space     cluster.SpaceID
	Partition cluster.PartitionID
	Src       cluster.HostAddr
	Dst       cluster.HostAddr
	StartTS   int64
	EndTS     int64
}

// EncodeTaskValue packs a TaskRecord per spec §6: state(1) | status(1) |
// space(4) | partition(4) | src_ip(4) | src_port(4) | dst_ip(4) |
// dst_port(4) | start_ts(8) | end_ts(8).
func EncodeTaskValue(r TaskRecord) []byte {
	b := make([]byte, 2+4+4+4+4+4+4+8+8)
	b[0] = byte(r.State)
	b[1] = byte(r.Status)
	binary.BigEndian.PutUint32(b[2:6], uint32(r.Space))
	binary.BigEndian.PutUint32(b[6:10], uint32(r.Partition))
	binary.BigEndian.PutUint32(b[10:14], r.Src.IP)
	binary.BigEndian.PutUint32(b[14:18], r.Src.Port)
	binary.BigEndian.PutUint32(b[18:22], r.Dst.IP)
	binary.BigEndian.PutUint32(b[22:26], r.Dst.Port)
	binary.BigEndian.PutUint64(b[26:34], uint64(r.StartTS))
	binary.BigEndian.PutUint64(b[34:42], uint64(r.EndTS))
	return b
}

// DecodeTaskValue is the inverse of EncodeTaskValue.
func DecodeTaskValue(value []byte) (TaskRecord, error) {
	if len(value) != 42 {
		return TaskRecord{}, fmt.Errorf("keys: malformed task value of length %d", len(value))
	}
	return TaskRecord{
		State:     TaskState(value[0]),
		Status:    TaskStatus(value[1]),
		Space:     cluster.SpaceID(binary.BigEndian.Uint32(value[2:6])),
		Partition: cluster.PartitionID(binary.BigEndian.Uint32(value[6:10])),
		Src: cluster.HostAddr{
			IP:   binary.BigEndian.Uint32(value[10:14]),
			Port: binary.BigEndian.Uint32(value[14:18]),
		},
		Dst: cluster.HostAddr{
			IP:   binary.BigEndian.Uint32(value[18:22]),
			Port: binary.BigEndian.Uint32(value[22:26]),
		},
		StartTS: int64(binary.BigEndian.Uint64(value[26:34])),
		EndTS:   int64(binary.BigEndian.Uint64(value[34:42])),
	}, nil
}

// ConfigKey encodes 0x20 | module(1) | name_len(2) | name(name_len).
func ConfigKey(module byte, name string) []byte {
	b := make([]byte, 1+1+2+len(name))
	b[0] = TagConfigItem
	b[1] = module
	binary.BigEndian.PutUint16(b[2:4], uint16(len(name)))
	copy(b[4:], name)
	return b
}

// ConfigModulePrefix is the scan prefix covering every item of one module.
func ConfigModulePrefix(module byte) []byte {
	return []byte{TagConfigItem, module}
}

// ConfigAllPrefix is the scan prefix covering every config item regardless
// of module, used by list(ALL) (spec §4.F).
func ConfigAllPrefix() []byte {
	return []byte{TagConfigItem}
}

// DecodeConfigKey parses a ConfigKey back into module and name.
func DecodeConfigKey(key []byte) (module byte, name string, err error) {
	if len(key) < 4 || key[0] != TagConfigItem {
		return 0, "", fmt.Errorf("keys: malformed config key %x", key)
	}
	nameLen := int(binary.BigEndian.Uint16(key[2:4]))
	if len(key) != 4+nameLen {
		return 0, "", fmt.Errorf("keys: malformed config key %x", key)
	}
	return key[1], string(key[4:]), nil
}

// ConfigValue is the decoded form of a 0x20 value.
type ConfigValue struct {
	Type  byte
	Mode  byte
	Value []byte
}

// EncodeConfigValue packs type(1) | mode(1) | value_len(4) | value(value_len).
func EncodeConfigValue(v ConfigValue) []byte {
	b := make([]byte, 1+1+4+len(v.Value))
	b[0] = v.Type
	b[1] = v.Mode
	binary.BigEndian.PutUint32(b[2:6], uint32(len(v.Value)))
	copy(b[6:], v.Value)
	return b
}

// DecodeConfigValue is the inverse of EncodeConfigValue.
func DecodeConfigValue(value []byte) (ConfigValue, error) {
	if len(value) < 6 {
		return ConfigValue{}, fmt.Errorf("keys: malformed config value of length %d", len(value))
	}
	valueLen := int(binary.BigEndian.Uint32(value[2:6]))
	if len(value) != 6+valueLen {
		return ConfigValue{}, fmt.Errorf("keys: malformed config value of length %d", len(value))
	}
	return ConfigValue{Type: value[0], Mode: value[1], Value: value[6:]}, nil
}
