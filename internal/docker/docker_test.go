package docker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testImage = "busybox:1.36"

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "0123456789ab", truncateID("0123456789abcdef"))
	assert.Equal(t, "short", truncateID(" short "))
}

func TestTailBuffer(t *testing.T) {
	b := newTailBuffer(5)
	_, _ = b.Write([]byte("ab"))
	_, _ = b.Write([]byte("cd"))
	assert.Equal(t, "abcd", b.String())
	assert.False(t, b.Truncated())

	_, _ = b.Write([]byte("efg"))
	assert.True(t, b.Truncated())
	assert.Equal(t, truncatedMarker+"cdefg", b.String())

	b2 := newTailBuffer(3)
	n, err := b2.Write([]byte("123456"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, truncatedMarker+"456", b2.String())

	b3 := newTailBuffer(3)
	_, _ = b3.Write([]byte("xyz"))
	assert.False(t, b3.Truncated())
	assert.Equal(t, "xyz", b3.String())
}

func TestWrapTimeout(t *testing.T) {
	cmd := []string{"sh", "-c", "go test ./..."}
	assert.Equal(t, cmd, wrapTimeout(cmd, 0))
	assert.Equal(t, []string{"timeout", "-s", "KILL", "300", "sh", "-c", "go test ./..."}, wrapTimeout(cmd, 5*time.Minute))
	assert.Equal(t, []string{"timeout", "-s", "KILL", "2", "true"}, wrapTimeout([]string{"true"}, 1500*time.Millisecond))
	assert.Equal(t, []string{"timeout", "-s", "KILL", "1", "true"}, wrapTimeout([]string{"true"}, time.Millisecond))
}

func TestLabelFilters(t *testing.T) {
	f := labelFilters(map[string]string{LabelManaged: "true", "env": ""})
	got := f.Get("label")
	assert.ElementsMatch(t, []string{LabelManaged + "=true", "env"}, got)
}

// requireDocker 在没有可用 daemon 时跳过测试
func requireDocker(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := Ping(ctx); err != nil {
		t.Skipf("docker daemon not available: %v", err)
	}
}

// setupTestContainer 启动一个测试用的长期容器，本地没有镜像会自动拉取
func setupTestContainer(t *testing.T, ctx context.Context) string {
	t.Helper()
	requireDocker(t)

	if _, err := EnsureImage(ctx, testImage); err != nil {
		t.Skipf("failed to pull %s (network issue?): %v", testImage, err)
	}

	name := fmt.Sprintf("graphpilot-test-%d", time.Now().UnixNano())
	info, err := EnsureContainer(ctx, ContainerSpec{
		Name:   name,
		Image:  testImage,
		Labels: map[string]string{"graphpilot.test": "true"},
	})
	require.NoError(t, err)
	require.True(t, info.Running)

	t.Cleanup(func() {
		_ = RemoveContainer(context.Background(), name)
	})
	return name
}

func TestEnsureContainerIdempotent(t *testing.T) {
	ctx := context.Background()
	name := setupTestContainer(t, ctx)

	again, err := EnsureContainer(ctx, ContainerSpec{Name: name, Image: testImage})
	require.NoError(t, err)
	assert.True(t, again.Running)
	assert.Equal(t, "true", again.Labels["graphpilot.test"])

	list, err := ListContainers(ctx, map[string]string{"graphpilot.test": "true"})
	require.NoError(t, err)
	found := false
	for _, c := range list {
		if strings.Contains(c.Names, name) {
			found = true
		}
	}
	assert.True(t, found)
}

func TestExec(t *testing.T) {
	ctx := context.Background()
	name := setupTestContainer(t, ctx)

	res, err := Exec(ctx, name, ExecRequest{Cmd: []string{"sh", "-c", "echo out; echo err >&2; exit 3"}})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.False(t, res.TimedOut)
	assert.Contains(t, res.Output, "out")
	assert.Contains(t, res.Output, "err")
}

func TestExecTimeout(t *testing.T) {
	name := setupTestContainer(t, context.Background())

	// busybox 的 timeout 只杀直接子进程，孙进程可能继续占用输出流，
	// 由宿主机侧的 ctx 兜底
	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()

	res, _ := Exec(ctx, name, ExecRequest{
		Cmd:     []string{"sh", "-c", "echo started; sleep 30"},
		Timeout: time.Second,
	})
	assert.True(t, res.TimedOut)
	assert.Contains(t, res.Output, "started")
	assert.Less(t, res.Duration, 10*time.Second)
}

func TestRemoveMissingIsNoop(t *testing.T) {
	requireDocker(t)
	ctx := context.Background()

	assert.NoError(t, RemoveContainer(ctx, "graphpilot-does-not-exist"))
	assert.NoError(t, RemoveVolume(ctx, "graphpilot-does-not-exist", false))

	_, err := InspectContainer(ctx, "graphpilot-does-not-exist")
	assert.True(t, errors.Is(err, ErrNotFound))

	running, err := NewRuntime().IsRunning(ctx, "graphpilot-does-not-exist")
	require.NoError(t, err)
	assert.False(t, running)
}

func TestCloseClientWithoutDaemon(t *testing.T) {
	// 创建 client 不需要 daemon，关闭可以重复调用
	_, _ = GetClient()
	assert.NoError(t, CloseClient())
	assert.NoError(t, CloseClient())
}
