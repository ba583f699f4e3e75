package recorder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeMonkeyCybersecurity/tmdbscan/pkg/titleid"
	"github.com/CodeMonkeyCybersecurity/tmdbscan/pkg/tmdb"
)

type memIndex struct {
	mu   sync.Mutex
	rows []*Discovery
	err  error
}

func (m *memIndex) SaveDiscovery(_ context.Context, d *Discovery) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, d)
	return nil
}

type memFeed struct {
	mu     sync.Mutex
	events []*Discovery
	err    error
}

func (m *memFeed) Publish(_ context.Context, d *Discovery) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, d)
	return nil
}

func newTestRecorder(t *testing.T, fs afero.Fs, opts ...Option) *Recorder {
	t.Helper()
	log, err := OpenDiscoveryLog(fs, "out/found_links.txt")
	require.NoError(t, err)
	return New(NewPayloadStore(fs, "out"), log, nil, opts...)
}

func xmlTask(id string) tmdb.Task {
	return tmdb.Task{
		TitleID:   id,
		Category:  titleid.PhysicalLegacy,
		URL:       "http://example.test/tmdb/" + id + "_00_TOKEN/" + id + "_00.xml",
		Extension: "xml",
	}
}

func TestRecord_WritesPayloadAndLine(t *testing.T) {
	fs := afero.NewMemMapFs()
	rec := newTestRecorder(t, fs)

	task := xmlTask("SCUS97399")
	rec.Record(context.Background(), task, []byte("<xml/>"))
	require.NoError(t, rec.Close())

	data, err := afero.ReadFile(fs, "out/xml/SCUS97399.xml")
	require.NoError(t, err)
	assert.Equal(t, "<xml/>", string(data))

	entries, err := afero.ReadDir(fs, "out/xml")
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	log, err := afero.ReadFile(fs, "out/found_links.txt")
	require.NoError(t, err)
	assert.Equal(t, "SCUS97399: "+task.URL+"\n", string(log))

	assert.Equal(t, int64(1), rec.Stats().Recorded)
}

func TestRecord_JSONGoesToItsOwnDirectory(t *testing.T) {
	fs := afero.NewMemMapFs()
	rec := newTestRecorder(t, fs)

	rec.Record(context.Background(), tmdb.Task{
		TitleID:   "CUSA00001",
		Category:  titleid.Disc4,
		URL:       "http://example.test/tmdb2/CUSA00001_00_T/CUSA00001_00.json",
		Extension: "json",
	}, []byte(`{"names":[{"name":"Example"}]}`))

	exists, err := afero.Exists(fs, "out/json/CUSA00001.json")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRecord_NoDeduplication(t *testing.T) {
	fs := afero.NewMemMapFs()
	rec := newTestRecorder(t, fs)

	task := xmlTask("SLUS00001")
	rec.Record(context.Background(), task, []byte("<a/>"))
	rec.Record(context.Background(), task, []byte("<b/>"))
	require.NoError(t, rec.Close())

	log, err := afero.ReadFile(fs, "out/found_links.txt")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(log), "\n"))

	data, err := afero.ReadFile(fs, "out/xml/SLUS00001.xml")
	require.NoError(t, err)
	assert.Equal(t, "<b/>", string(data))
}

func TestRecord_ConcurrentLinesDoNotInterleave(t *testing.T) {
	fs := afero.NewMemMapFs()
	rec := newTestRecorder(t, fs)

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec.Record(context.Background(), xmlTask(titleid.New("SCES", i)), []byte("<xml/>"))
		}(i)
	}
	wg.Wait()
	require.NoError(t, rec.Close())

	log, err := afero.ReadFile(fs, "out/found_links.txt")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(string(log), "\n"), "\n")
	require.Len(t, lines, 200)
	for _, line := range lines {
		id, url, ok := strings.Cut(line, ": ")
		require.True(t, ok, line)
		assert.Contains(t, url, "/"+id+"_00.xml")
	}
}

func TestRecord_StoreFailureStillLogsDiscovery(t *testing.T) {
	base := afero.NewMemMapFs()
	log, err := OpenDiscoveryLog(base, "found_links.txt")
	require.NoError(t, err)

	ro := afero.NewReadOnlyFs(base)
	rec := New(NewPayloadStore(ro, "out"), log, nil)

	rec.Record(context.Background(), xmlTask("SCUS97399"), []byte("<xml/>"))
	require.NoError(t, rec.Close())

	stats := rec.Stats()
	assert.Equal(t, int64(1), stats.StoreFailures)
	assert.Zero(t, stats.LogFailures)

	data, err := afero.ReadFile(base, "found_links.txt")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "SCUS97399: "))
}

func TestRecord_FansOutToIndexAndFeed(t *testing.T) {
	fs := afero.NewMemMapFs()
	idx := &memIndex{}
	feed := &memFeed{}
	rec := newTestRecorder(t, fs, WithIndex(idx), WithFeed(feed), WithRunID("run-1"))

	payload := []byte("<tmdb><name>Example Game</name><icon>http://example.test/i.png</icon></tmdb>")
	rec.Record(context.Background(), xmlTask("BLUS30001"), payload)

	require.Len(t, idx.rows, 1)
	require.Len(t, feed.events, 1)

	d := idx.rows[0]
	assert.Equal(t, "run-1", d.RunID)
	assert.Equal(t, "BLUS30001", d.TitleID)
	assert.Equal(t, "physical-legacy", d.Category)
	assert.Equal(t, "Example Game", d.Name)
	assert.Equal(t, "http://example.test/i.png", d.Icon)
	assert.Equal(t, len(payload), d.Size)
	assert.Equal(t, Fingerprint(payload), d.Fingerprint)
	assert.Same(t, d, feed.events[0])
}

func TestRecord_SinkFailuresAreCounted(t *testing.T) {
	fs := afero.NewMemMapFs()
	rec := newTestRecorder(t, fs,
		WithIndex(&memIndex{err: errors.New("database is locked")}),
		WithFeed(&memFeed{err: errors.New("connection refused")}),
	)

	for i := 0; i < 3; i++ {
		rec.Record(context.Background(), xmlTask(fmt.Sprintf("SCUS0000%d", i)), []byte("<xml/>"))
	}

	stats := rec.Stats()
	assert.Equal(t, int64(3), stats.Recorded)
	assert.Equal(t, int64(3), stats.IndexFailures)
	assert.Equal(t, int64(3), stats.FeedFailures)

	exists, err := afero.Exists(fs, "out/xml/SCUS00002.xml")
	require.NoError(t, err)
	assert.True(t, exists)
}
