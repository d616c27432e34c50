package engine

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karttahq/kartta/cache"
	"github.com/karttahq/kartta/normalize"
	"github.com/karttahq/kartta/providers"
	"github.com/karttahq/kartta/telemetry"
	"github.com/karttahq/kartta/types"
)

type fakeFetcher struct {
	mu            sync.Mutex
	listCalls     []string
	describeCalls int

	listFn     func(account, region, resourceType string) ([]providers.Payload, error)
	describeFn func(entry *types.ResourceEntry) (providers.Payload, error)
	tagsFn     func(resourceType, resourceID string) ([]types.Tag, error)
}

func (f *fakeFetcher) List(_ context.Context, account, region, resourceType string) ([]providers.Payload, error) {
	f.mu.Lock()
	f.listCalls = append(f.listCalls, account+"/"+region+"/"+resourceType)
	f.mu.Unlock()
	if f.listFn == nil {
		return nil, nil
	}
	return f.listFn(account, region, resourceType)
}

func (f *fakeFetcher) Describe(_ context.Context, entry *types.ResourceEntry) (providers.Payload, error) {
	f.mu.Lock()
	f.describeCalls++
	f.mu.Unlock()
	if f.describeFn == nil {
		return providers.Payload{}, nil
	}
	return f.describeFn(entry)
}

func (f *fakeFetcher) FetchTags(_ context.Context, resourceType, resourceID, _, _ string) ([]types.Tag, error) {
	if f.tagsFn == nil {
		return nil, nil
	}
	return f.tagsFn(resourceType, resourceID)
}

func (f *fakeFetcher) listCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listCalls)
}

// widgetNormalizer is a minimal enrichable normalizer whose detail
// output is fully controlled by the describe payload.
type widgetNormalizer struct{}

func (widgetNormalizer) Type() string     { return "widget" }
func (widgetNormalizer) Enrichable() bool { return true }

func (widgetNormalizer) Normalize(_ context.Context, raw providers.Payload, in normalize.Input) (*types.ResourceEntry, error) {
	id, _ := raw["Id"].(string)
	if id == "" {
		return nil, normalize.ErrNoIdentifier
	}
	props := map[string]any{}
	for k, v := range raw {
		if k != "Id" {
			props[k] = v
		}
	}
	return &types.ResourceEntry{
		ResourceType:  "widget",
		AccountID:     in.Account,
		Region:        in.Region,
		ResourceID:    id,
		DisplayName:   id,
		Properties:    props,
		RawProperties: raw,
		QueriedAt:     in.QueriedAt,
	}, nil
}

func (widgetNormalizer) Relationships(*types.ResourceEntry, *normalize.EntrySet) []types.Relationship {
	return nil
}

func (widgetNormalizer) NormalizeDetail(detail providers.Payload) map[string]any {
	props := map[string]any{}
	for k, v := range detail {
		props[k] = v
	}
	return props
}

// gadgetNormalizer is the non-enrichable variant.
type gadgetNormalizer struct{ widgetNormalizer }

func (gadgetNormalizer) Type() string     { return "gadget" }
func (gadgetNormalizer) Enrichable() bool { return false }

func (gadgetNormalizer) Normalize(ctx context.Context, raw providers.Payload, in normalize.Input) (*types.ResourceEntry, error) {
	entry, err := widgetNormalizer{}.Normalize(ctx, raw, in)
	if err != nil {
		return nil, err
	}
	entry.ResourceType = "gadget"
	return entry, nil
}

func widgetRegistry() *normalize.Registry {
	r := normalize.NewRegistry()
	r.Register(widgetNormalizer{})
	r.Register(gadgetNormalizer{})
	return r
}

func discardLogger() *telemetry.Logger {
	return &telemetry.Logger{Logger: zerolog.New(io.Discard)}
}

func newTestEngine(f providers.Fetcher, reg *normalize.Registry, opts Options) (*Engine, *cache.Store) {
	c := cache.New(0)
	return New(f, c, reg, discardLogger(), opts), c
}

func drainEvents(t *testing.T, q *Query) []Event {
	t.Helper()
	var events []Event
	for ev := range q.Events() {
		events = append(events, ev)
	}
	return events
}

func widgetScope(accounts, regions []string) types.QueryScope {
	return types.QueryScope{Accounts: accounts, Regions: regions, ResourceTypes: []string{"widget"}}
}

func TestExecute_EmptyScope(t *testing.T) {
	e, _ := newTestEngine(&fakeFetcher{}, widgetRegistry(), Options{})

	_, err := e.Execute(context.Background(), types.QueryScope{})
	assert.ErrorIs(t, err, ErrEmptyScope)
}

func TestExecute_GlobalTypeListsOnce(t *testing.T) {
	fetcher := &fakeFetcher{
		listFn: func(_, region, _ string) ([]providers.Payload, error) {
			assert.Equal(t, "us-east-1", region)
			return []providers.Payload{{"RoleName": "deploy", "Arn": "arn:aws:iam::123456789012:role/deploy"}}, nil
		},
		tagsFn: func(_, _ string) ([]types.Tag, error) {
			return []types.Tag{{Key: "team", Value: "platform"}}, nil
		},
	}
	e, _ := newTestEngine(fetcher, normalize.Default(), Options{})

	scope := types.QueryScope{
		Accounts:      []string{"123456789012"},
		Regions:       []string{"us-east-1", "eu-west-1", "ap-southeast-2"},
		ResourceTypes: []string{"iam-role"},
	}
	q, err := e.Execute(context.Background(), scope)
	require.NoError(t, err)

	events := drainEvents(t, q)
	assert.Equal(t, 1, fetcher.listCallCount())

	require.Equal(t, EventPhase1Started, events[0].Kind)
	assert.Equal(t, 1, events[0].TotalQueries)
	assert.Equal(t, []string{"123456789012:Global:iam-role"}, events[0].QueryKeys)

	final := events[len(events)-1]
	require.Equal(t, EventCompleted, final.Kind)
	require.Len(t, final.Resources, 1)
	assert.Equal(t, "Global", final.Resources[0].Region)
	assert.Equal(t, "platform", final.Resources[0].Tag("team"))
}

func TestExecute_PartialFailure(t *testing.T) {
	fetcher := &fakeFetcher{
		listFn: func(account, region, _ string) ([]providers.Payload, error) {
			if account == "222222222222" && region == "eu-west-1" {
				return nil, &smithy.GenericAPIError{Code: "AccessDenied", Message: "nope"}
			}
			return []providers.Payload{{"Id": "w-" + account + "-" + region}}, nil
		},
	}
	e, _ := newTestEngine(fetcher, widgetRegistry(), Options{})

	scope := widgetScope(
		[]string{"111111111111", "222222222222"},
		[]string{"us-east-1", "eu-west-1"},
	)
	q, err := e.Execute(context.Background(), scope)
	require.NoError(t, err)

	events := drainEvents(t, q)

	var failed []Event
	var completed, phase1Done *Event
	for i := range events {
		switch events[i].Kind {
		case EventPhase1QueryFailed:
			failed = append(failed, events[i])
		case EventPhase1Completed:
			phase1Done = &events[i]
		case EventCompleted:
			completed = &events[i]
		}
	}

	require.Len(t, failed, 1)
	assert.Equal(t, "222222222222:eu-west-1:widget", failed[0].QueryKey)
	assert.Equal(t, CategoryAccessDenied, failed[0].Category)
	assert.Equal(t, SeverityError, failed[0].Severity)

	require.NotNil(t, phase1Done)
	assert.Len(t, phase1Done.Resources, 3)
	require.NotNil(t, completed)
	assert.Len(t, completed.Resources, 3)
}

func TestExecute_TerminalEventExactlyOnce(t *testing.T) {
	fetcher := &fakeFetcher{
		listFn: func(account, region, _ string) ([]providers.Payload, error) {
			if region == "eu-west-1" {
				return nil, errors.New("boom")
			}
			return []providers.Payload{{"Id": "w-" + account}}, nil
		},
	}
	e, _ := newTestEngine(fetcher, widgetRegistry(), Options{})

	q, err := e.Execute(context.Background(), widgetScope(
		[]string{"111111111111"}, []string{"us-east-1", "eu-west-1"},
	))
	require.NoError(t, err)

	events := drainEvents(t, q)
	terminals := 0
	for _, ev := range events {
		if ev.Terminal() {
			terminals++
		}
	}
	assert.Equal(t, 1, terminals)
	assert.True(t, events[len(events)-1].Terminal())
}

func TestExecute_Phase2MergesDescribeOverListing(t *testing.T) {
	fetcher := &fakeFetcher{
		listFn: func(_, _, _ string) ([]providers.Payload, error) {
			return []providers.Payload{{"Id": "w-1", "A": 1, "B": 2}}, nil
		},
		describeFn: func(_ *types.ResourceEntry) (providers.Payload, error) {
			return providers.Payload{"B": 3, "C": 4}, nil
		},
	}
	e, store := newTestEngine(fetcher, widgetRegistry(), Options{})

	q, err := e.Execute(context.Background(), widgetScope(
		[]string{"123456789012"}, []string{"us-east-1"},
	))
	require.NoError(t, err)
	events := drainEvents(t, q)

	var phase2Started, phase2Done bool
	for _, ev := range events {
		switch ev.Kind {
		case EventPhase2Started:
			phase2Started = true
			assert.Equal(t, 1, ev.TotalResources)
		case EventPhase2Completed:
			phase2Done = true
		}
	}
	assert.True(t, phase2Started)
	assert.True(t, phase2Done)

	final := events[len(events)-1]
	require.Equal(t, EventCompleted, final.Kind)
	require.Len(t, final.Resources, 1)

	entry := final.Resources[0]
	assert.Equal(t, map[string]any{"A": 1, "B": 3, "C": 4}, entry.Properties)
	assert.True(t, entry.HasDetail())

	cached, ok := store.Get("123456789012:us-east-1:widget")
	require.True(t, ok)
	require.Len(t, cached, 1)
	assert.Equal(t, map[string]any{"A": 1, "B": 3, "C": 4}, cached[0].Properties)
	assert.True(t, cached[0].HasDetail())
}

func TestExecute_NonEnrichableSkipsPhase2(t *testing.T) {
	fetcher := &fakeFetcher{
		listFn: func(_, _, _ string) ([]providers.Payload, error) {
			return []providers.Payload{{"Id": "g-1"}}, nil
		},
	}
	e, _ := newTestEngine(fetcher, widgetRegistry(), Options{})

	scope := types.QueryScope{
		Accounts:      []string{"123456789012"},
		Regions:       []string{"us-east-1"},
		ResourceTypes: []string{"gadget"},
	}
	q, err := e.Execute(context.Background(), scope)
	require.NoError(t, err)

	for _, ev := range drainEvents(t, q) {
		assert.NotContains(t, string(ev.Kind), "phase2")
	}
	assert.Equal(t, 0, fetcher.describeCalls)
}

func TestExecute_DescribeFailureKeepsListingData(t *testing.T) {
	fetcher := &fakeFetcher{
		listFn: func(_, _, _ string) ([]providers.Payload, error) {
			return []providers.Payload{
				{"Id": "w-ok", "A": 1},
				{"Id": "w-bad", "A": 1},
			}, nil
		},
		describeFn: func(entry *types.ResourceEntry) (providers.Payload, error) {
			if entry.ResourceID == "w-bad" {
				return nil, &smithy.GenericAPIError{Code: "Throttling", Message: "slow down"}
			}
			return providers.Payload{"A": 2}, nil
		},
	}
	e, _ := newTestEngine(fetcher, widgetRegistry(), Options{})

	q, err := e.Execute(context.Background(), widgetScope(
		[]string{"123456789012"}, []string{"us-east-1"},
	))
	require.NoError(t, err)
	events := drainEvents(t, q)

	final := events[len(events)-1]
	require.Equal(t, EventCompleted, final.Kind)
	require.Len(t, final.Resources, 2)

	byID := make(map[string]types.ResourceEntry)
	for _, entry := range final.Resources {
		byID[entry.ResourceID] = entry
	}
	enriched := byID["w-ok"]
	assert.True(t, enriched.HasDetail())
	assert.Equal(t, 2, enriched.Properties["A"])

	skipped := byID["w-bad"]
	assert.False(t, skipped.HasDetail())
	assert.Equal(t, 1, skipped.Properties["A"])
}

func TestExecute_DuplicateIdentityOverwrites(t *testing.T) {
	fetcher := &fakeFetcher{
		listFn: func(_, _, _ string) ([]providers.Payload, error) {
			return []providers.Payload{
				{"Id": "g-1", "Version": 1},
				{"Id": "g-1", "Version": 2},
			}, nil
		},
	}
	e, _ := newTestEngine(fetcher, widgetRegistry(), Options{})

	scope := types.QueryScope{
		Accounts:      []string{"123456789012"},
		Regions:       []string{"us-east-1"},
		ResourceTypes: []string{"gadget"},
	}
	q, err := e.Execute(context.Background(), scope)
	require.NoError(t, err)

	entries, err := q.Wait(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].Properties["Version"])
}

func TestExecute_MaxStaleServesFromCache(t *testing.T) {
	fetcher := &fakeFetcher{
		listFn: func(_, _, _ string) ([]providers.Payload, error) {
			return nil, errors.New("should not list")
		},
	}
	e, store := newTestEngine(fetcher, widgetRegistry(), Options{MaxStale: time.Hour})

	cached := []types.ResourceEntry{{
		ResourceType: "widget",
		AccountID:    "123456789012",
		Region:       "us-east-1",
		ResourceID:   "w-cached",
		QueriedAt:    time.Now().UTC(),
	}}
	store.Put("123456789012:us-east-1:widget", cached)

	q, err := e.Execute(context.Background(), widgetScope(
		[]string{"123456789012"}, []string{"us-east-1"},
	))
	require.NoError(t, err)

	entries, err := q.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, fetcher.listCallCount())
	require.Len(t, entries, 1)
	assert.Equal(t, "w-cached", entries[0].ResourceID)
}

func TestExecute_CacheKeysStayIndependent(t *testing.T) {
	fetcher := &fakeFetcher{
		listFn: func(_, region, _ string) ([]providers.Payload, error) {
			return []providers.Payload{{"Id": "w-" + region, "Gen": 1}}, nil
		},
	}
	e, store := newTestEngine(fetcher, widgetRegistry(), Options{})

	q, err := e.Execute(context.Background(), widgetScope(
		[]string{"123456789012"}, []string{"us-east-1", "eu-west-1"},
	))
	require.NoError(t, err)
	_, err = q.Wait(context.Background())
	require.NoError(t, err)

	before, ok := store.Get("123456789012:eu-west-1:widget")
	require.True(t, ok)

	// Re-query only us-east-1 with new data.
	fetcher.listFn = func(_, region, _ string) ([]providers.Payload, error) {
		return []providers.Payload{{"Id": "w-" + region, "Gen": 2}}, nil
	}
	q, err = e.Execute(context.Background(), widgetScope(
		[]string{"123456789012"}, []string{"us-east-1"},
	))
	require.NoError(t, err)
	_, err = q.Wait(context.Background())
	require.NoError(t, err)

	east, ok := store.Get("123456789012:us-east-1:widget")
	require.True(t, ok)
	assert.Equal(t, 2, east[0].Properties["Gen"])

	after, ok := store.Get("123456789012:eu-west-1:widget")
	require.True(t, ok)
	assert.Equal(t, before, after)
}

func TestExecute_MemoryBudgetTrip(t *testing.T) {
	e, _ := newTestEngine(&fakeFetcher{}, widgetRegistry(), Options{MemoryBudgetBytes: 1})

	q, err := e.Execute(context.Background(), widgetScope(
		[]string{"123456789012"}, []string{"us-east-1"},
	))
	require.NoError(t, err)

	events := drainEvents(t, q)
	require.Len(t, events, 1)
	assert.Equal(t, EventFailed, events[0].Kind)
	assert.Error(t, events[0].Err)

	_, err = q.Wait(context.Background())
	assert.Error(t, err)
}

func TestEnrich_OnDemand(t *testing.T) {
	fetcher := &fakeFetcher{
		describeFn: func(_ *types.ResourceEntry) (providers.Payload, error) {
			return providers.Payload{"Deep": true}, nil
		},
	}
	e, store := newTestEngine(fetcher, widgetRegistry(), Options{})

	entry := types.ResourceEntry{
		ResourceType: "widget",
		AccountID:    "123456789012",
		Region:       "us-east-1",
		ResourceID:   "w-1",
		Properties:   map[string]any{"A": 1},
	}
	store.Put(entry.CacheKey(), []types.ResourceEntry{entry})

	require.NoError(t, e.Enrich(context.Background(), &entry))
	assert.True(t, entry.HasDetail())
	assert.Equal(t, true, entry.Properties["Deep"])
	assert.Equal(t, 1, entry.Properties["A"])

	cached, ok := store.Get(entry.CacheKey())
	require.True(t, ok)
	assert.True(t, cached[0].HasDetail())
}

func TestEnrich_SuppressesRepeatFailures(t *testing.T) {
	fetcher := &fakeFetcher{
		describeFn: func(_ *types.ResourceEntry) (providers.Payload, error) {
			return nil, errors.New("boom")
		},
	}
	e, _ := newTestEngine(fetcher, widgetRegistry(), Options{})

	entry := types.ResourceEntry{
		ResourceType: "widget",
		AccountID:    "123456789012",
		Region:       "us-east-1",
		ResourceID:   "w-1",
	}

	err := e.Enrich(context.Background(), &entry)
	require.Error(t, err)
	assert.Equal(t, 1, fetcher.describeCalls)

	err = e.Enrich(context.Background(), &entry)
	assert.ErrorIs(t, err, ErrSuppressed)
	assert.Equal(t, 1, fetcher.describeCalls)
}

func TestCollect_WarningsAndErrors(t *testing.T) {
	fetcher := &fakeFetcher{
		listFn: func(_, region, _ string) ([]providers.Payload, error) {
			switch region {
			case "eu-west-1":
				return nil, &smithy.GenericAPIError{Code: "Throttling", Message: "slow down"}
			case "ap-southeast-2":
				return nil, &smithy.GenericAPIError{Code: "AccessDenied", Message: "nope"}
			}
			return []providers.Payload{{"Id": "g-1"}}, nil
		},
	}
	e, _ := newTestEngine(fetcher, widgetRegistry(), Options{})

	scope := types.QueryScope{
		Accounts:      []string{"123456789012"},
		Regions:       []string{"us-east-1", "eu-west-1", "ap-southeast-2"},
		ResourceTypes: []string{"gadget"},
	}
	result, err := e.Collect(context.Background(), scope, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Count)
	assert.False(t, result.Partial)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "RateLimitExceeded")
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "AccessDenied")
}

func TestCollect_DetailWaitReturnsPartial(t *testing.T) {
	block := make(chan struct{})
	fetcher := &fakeFetcher{
		listFn: func(_, _, _ string) ([]providers.Payload, error) {
			return []providers.Payload{{"Id": "w-1"}}, nil
		},
		describeFn: func(_ *types.ResourceEntry) (providers.Payload, error) {
			<-block
			return providers.Payload{}, nil
		},
	}
	e, _ := newTestEngine(fetcher, widgetRegistry(), Options{})
	defer close(block)

	result, err := e.Collect(context.Background(), widgetScope(
		[]string{"123456789012"}, []string{"us-east-1"},
	), 50*time.Millisecond)
	require.NoError(t, err)

	assert.True(t, result.Partial)
	require.Len(t, result.Entries, 1)
	assert.False(t, result.Entries[0].HasDetail())
}

type countingSnapshots struct {
	mu    sync.Mutex
	calls map[string]int
}

func (c *countingSnapshots) RecordQuery(_ context.Context, cacheKey string, _ []types.ResourceEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = make(map[string]int)
	}
	c.calls[cacheKey]++
	return nil
}

func TestExecute_SnapshotsOncePerKey(t *testing.T) {
	fetcher := &fakeFetcher{
		listFn: func(_, region, _ string) ([]providers.Payload, error) {
			return []providers.Payload{{"Id": "w-" + region}}, nil
		},
	}
	snaps := &countingSnapshots{}
	e, _ := newTestEngine(fetcher, widgetRegistry(), Options{})
	e.WithSnapshots(snaps)

	q, err := e.Execute(context.Background(), widgetScope(
		[]string{"123456789012"}, []string{"us-east-1", "eu-west-1"},
	))
	require.NoError(t, err)
	drainEvents(t, q)

	require.Len(t, snaps.calls, 2)
	for cacheKey, writes := range snaps.calls {
		assert.Equal(t, 1, writes, "cache key %s recorded more than once", cacheKey)
	}
}
