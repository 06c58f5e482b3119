package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/getpup/pupdeploy"
	"github.com/getpup/pupdeploy/remote"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMarker(t *testing.T, runner remote.Runner, urls ...string) *VersionMarker {
	t.Helper()
	m, err := NewVersionMarker(MarkerConfig{
		Template: "config/version.tpl",
		Path:     "config/version.php",
		URLs:     urls,
		Hosts:    []pupdeploy.Host{"web1", "web2"},
		Runner:   runner,
	})
	require.NoError(t, err)
	return m
}

func TestNewVersionMarker_Validation(t *testing.T) {
	runner := remote.NewMockRunner()
	hosts := []pupdeploy.Host{"web1", "web2"}

	tests := []struct {
		name string
		cfg  MarkerConfig
	}{
		{"missing template", MarkerConfig{Path: "v", URLs: []string{"u"}, Hosts: hosts, Runner: runner}},
		{"missing URLs", MarkerConfig{Template: "t", Path: "v", Hosts: hosts, Runner: runner}},
		{"missing runner", MarkerConfig{Template: "t", Path: "v", URLs: []string{"u"}, Hosts: hosts}},
		{"URL count mismatch", MarkerConfig{Template: "t", Path: "v", URLs: []string{"a", "b", "c"}, Hosts: hosts, Runner: runner}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewVersionMarker(tt.cfg)
			assert.ErrorIs(t, err, pupdeploy.ErrConfiguration)
		})
	}
}

func TestVersionMarker_Script(t *testing.T) {
	m := newMarker(t, remote.NewMockRunner(), "http://10.0.0.1/setrev.php", "http://10.0.0.2/setrev.php")

	script, err := m.Script("web2", "/var/www/shop_2024-01-01_120000", 1704110400)

	require.NoError(t, err)
	assert.Equal(t,
		"cd /var/www/shop_2024-01-01_120000 && "+
			"sed 's/#deployment_timestamp#/1704110400/' config/version.tpl > config/version.php.tmp && "+
			"mv config/version.php.tmp config/version.php && "+
			"curl -s -S 'http://10.0.0.2/setrev.php?rev=1704110400'",
		script)
}

func TestVersionMarker_SingleURLForAllHosts(t *testing.T) {
	m := newMarker(t, remote.NewMockRunner(), "http://localhost/setrev.php")

	for _, host := range []pupdeploy.Host{"web1", "web2"} {
		script, err := m.Script(host, "/var/www/r", 5)
		require.NoError(t, err)
		assert.Contains(t, script, "'http://localhost/setrev.php?rev=5'")
	}
}

func TestVersionMarker_UnknownHost(t *testing.T) {
	m := newMarker(t, remote.NewMockRunner(), "http://localhost/setrev.php")

	_, err := m.Script("web9", "/var/www/r", 5)

	assert.ErrorIs(t, err, pupdeploy.ErrConfiguration)
}

func TestVersionMarker_InvalidateRunsOnHost(t *testing.T) {
	runner := remote.NewMockRunner()
	m := newMarker(t, runner, "http://localhost/setrev.php")

	err := m.Invalidate(context.Background(), "web1", "/var/www/r", Event{Revision: 42})

	require.NoError(t, err)
	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, pupdeploy.Host("web1"), calls[0].Host)
	assert.True(t, calls[0].AllowFailure)
	assert.Contains(t, calls[0].Script, "rev=42")
}

func TestVersionMarker_FailureIsNotFatal(t *testing.T) {
	runner := remote.NewMockRunner()
	runner.RunFunc = func(ctx context.Context, cmd remote.Command) (remote.Result, error) {
		return remote.Result{ExitCode: 7, Output: []string{"curl: (7) Failed to connect"}}, nil
	}
	m := newMarker(t, runner, "http://localhost/setrev.php")

	err := m.Invalidate(context.Background(), "web1", "/var/www/r", Event{Revision: 42})

	assert.NoError(t, err)
}

func TestVersionMarker_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := remote.NewMockRunner()
	runner.RunFunc = func(ctx context.Context, cmd remote.Command) (remote.Result, error) {
		cancel()
		return remote.Result{ExitCode: -1}, context.Canceled
	}
	m := newMarker(t, runner, "http://localhost/setrev.php")

	err := m.Invalidate(ctx, "web1", "/var/www/r", Event{Revision: 42})

	assert.ErrorIs(t, err, context.Canceled)
}

type fakeRedis struct {
	sets      map[string]interface{}
	published map[string][]interface{}
	setErr    error
	pubErr    error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{sets: map[string]interface{}{}, published: map[string][]interface{}{}}
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	f.sets[key] = value
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	if f.pubErr != nil {
		return redis.NewIntResult(0, f.pubErr)
	}
	f.published[channel] = append(f.published[channel], message)
	return redis.NewIntResult(2, nil)
}

func TestRedisNotifier_Notify(t *testing.T) {
	client := newFakeRedis()
	n := NewRedisNotifier(RedisConfig{Client: client})
	ev := Event{
		Project:  "shop",
		Action:   pupdeploy.ActionUpdate,
		Release:  "shop_2024-01-01_120000",
		Revision: 1704110400,
		At:       time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}

	require.NoError(t, n.Notify(context.Background(), ev))

	assert.Equal(t, "shop_2024-01-01_120000", client.sets["pupdeploy:shop:release"])
	msgs := client.published["pupdeploy:shop:releases"]
	require.Len(t, msgs, 1)

	var decoded Event
	require.NoError(t, json.Unmarshal(msgs[0].([]byte), &decoded))
	assert.Equal(t, ev.Release, decoded.Release)
	assert.Equal(t, ev.Action, decoded.Action)
	assert.True(t, ev.At.Equal(decoded.At))
}

func TestRedisNotifier_CustomPrefix(t *testing.T) {
	n := NewRedisNotifier(RedisConfig{Client: newFakeRedis(), Prefix: "deploys"})

	assert.Equal(t, "deploys:shop:release", n.Key("shop"))
	assert.Equal(t, "deploys:shop:releases", n.Channel("shop"))
}

func TestRedisNotifier_Errors(t *testing.T) {
	boom := errors.New("connection refused")

	client := newFakeRedis()
	client.setErr = boom
	err := NewRedisNotifier(RedisConfig{Client: client}).Notify(context.Background(), Event{Project: "shop"})
	assert.ErrorIs(t, err, boom)

	client = newFakeRedis()
	client.pubErr = boom
	err = NewRedisNotifier(RedisConfig{Client: client}).Notify(context.Background(), Event{Project: "shop"})
	assert.ErrorIs(t, err, boom)
}
