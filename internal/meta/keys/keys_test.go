package keys

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fgr-araujo/nebula/internal/meta/cluster"
)

func mustHost(t *testing.T, ip string, port uint32) cluster.HostAddr {
	h, err := cluster.NewHostAddr(ip, port)
	require.NoError(t, err)
	return h
}

func TestAllocationKeyRoundTrip(t *testing.T) {
	key := AllocationKey(7, 3)
	space, partition, err := DecodeAllocationKey(key)
	require.NoError(t, err)
	require.EqualValues(t, 7, space)
	require.EqualValues(t, 3, partition)
}

func TestAllocationValueRoundTrip(t *testing.T) {
	peers := []cluster.HostAddr{
		mustHost(t, "10.0.0.1", 9000),
		mustHost(t, "10.0.0.2", 9001),
	}
	decoded, err := DecodeAllocationValue(EncodeAllocationValue(peers))
	require.NoError(t, err)
	require.Equal(t, peers, decoded)
}

func TestHostKeyRoundTrip(t *testing.T) {
	host := mustHost(t, "192.168.1.5", 6000)
	decoded, err := DecodeHostKey(HostKey(host))
	require.NoError(t, err)
	require.Equal(t, host, decoded)
}

func TestHeartbeatValueRoundTrip(t *testing.T) {
	decoded, err := DecodeHeartbeatValue(EncodeHeartbeatValue(123456789))
	require.NoError(t, err)
	require.EqualValues(t, 123456789, decoded)
}

func TestPlanHeaderRoundTrip(t *testing.T) {
	planID, err := DecodePlanHeaderKey(PlanHeaderKey(42))
	require.NoError(t, err)
	require.EqualValues(t, 42, planID)

	status, count, err := DecodePlanHeaderValue(EncodePlanHeaderValue(PlanSucceeded, 5))
	require.NoError(t, err)
	require.Equal(t, PlanSucceeded, status)
	require.EqualValues(t, 5, count)
}

func TestTaskRecordRoundTrip(t *testing.T) {
	src := mustHost(t, "10.0.0.1", 9000)
	dst := mustHost(t, "10.0.0.2", 9000)
	rec := TaskRecord{
		State:     TaskMemberChangeAdd,
		Status:    TaskRunning,
		Space:     1,
		Partition: 2,
		Src:       src,
		Dst:       dst,
		StartTS:   1000,
		EndTS:     0,
	}
	decoded, err := DecodeTaskValue(EncodeTaskValue(rec))
	require.NoError(t, err)
	require.Equal(t, rec, decoded)
}

func TestConfigKeyRoundTrip(t *testing.T) {
	module, name, err := DecodeConfigKey(ConfigKey(2, "load_config_interval_secs"))
	require.NoError(t, err)
	require.EqualValues(t, 2, module)
	require.Equal(t, "load_config_interval_secs", name)
}

func TestConfigValueRoundTrip(t *testing.T) {
	v := ConfigValue{Type: 0, Mode: 1, Value: []byte{1, 2, 3, 4, 5, 6, 7, 8}}
	decoded, err := DecodeConfigValue(EncodeConfigValue(v))
	require.NoError(t, err)
	require.Equal(t, v, decoded)
}
