package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"coin-digest/internal/digest"
	"coin-digest/internal/domain"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

var (
	testTracer = trace.NewNoopTracerProvider().Tracer("test")
	fixedNow   = time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
)

func newTestService(t *testing.T, fetcher *mockFetcher, sink Sink, redisClient RedisClient, opts DigestOptions) *DigestService {
	t.Helper()
	if len(opts.Query.IDs) == 0 {
		q, err := domain.NewPriceQuery([]string{"bitcoin", "ethereum", "solana"}, "usd")
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		opts.Query = q
	}
	svc := NewDigestService(testTracer, fetcher, digest.NewComposer(digest.PlainMarkup{}, time.UTC), sink, redisClient, opts)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func TestDigestService_RunDeliversAllSections(t *testing.T) {
	t.Parallel()

	fetcher := &mockFetcher{
		prices: domain.PriceResult{Currency: "usd", Prices: map[string]float64{"bitcoin": 50000, "ethereum": 3000}},
		coins:  []domain.TrendingCoin{{Name: "Pepe", Symbol: "PEPE", Description: domain.DefaultDescription}},
	}
	sink := &mockSink{}
	redis := newFakeRedis()
	recorder := &mockRecorder{}
	svc := newTestService(t, fetcher, sink, redis, DigestOptions{ChatID: "42", TrendingEnabled: true})
	svc.SetDeliveryRecorder(recorder)

	rec, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Status != domain.DeliverySent || rec.ChatID != "42" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if len(sink.sent) != 1 || sink.chatIDs[0] != "42" {
		t.Fatalf("expected exactly one send to 42, got %v", sink.chatIDs)
	}

	text := sink.sent[0]
	for _, want := range []string{"Bitcoin: $50000\nEthereum: $3000\nSolana: unavailable", "Trending Coins:", "1. Pepe (PEPE)"} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in message:\n%s", want, text)
		}
	}
	if strings.Index(text, "Current Prices:") > strings.Index(text, "Trending Coins:") {
		t.Fatalf("price section should come first:\n%s", text)
	}
	if rec.MessageChars != len([]rune(text)) {
		t.Fatalf("expected %d chars, got %d", len([]rune(text)), rec.MessageChars)
	}

	if _, ok := redis.data[lastDigestKey]; !ok {
		t.Fatal("delivered digest should be cached")
	}
	if len(recorder.records) != 1 || recorder.records[0].Status != domain.DeliverySent {
		t.Fatalf("expected sent record, got %+v", recorder.records)
	}
}

func TestDigestService_RunDeliversWhenPricesFail(t *testing.T) {
	t.Parallel()

	fetcher := &mockFetcher{
		priceErr: &domain.APIError{Endpoint: "coingecko", StatusCode: 500, Body: "oops"},
		coins:    []domain.TrendingCoin{{Name: "Pepe", Symbol: "PEPE"}},
	}
	sink := &mockSink{}
	svc := newTestService(t, fetcher, sink, nil, DigestOptions{ChatID: "42", TrendingEnabled: true})

	if _, err := svc.Run(context.Background()); err != nil {
		t.Fatalf("price failure must not abort the run: %v", err)
	}
	if len(sink.sent) != 1 {
		t.Fatalf("expected a partial message to be sent")
	}
	if !strings.Contains(sink.sent[0], "Price data is currently unavailable (status 500).") {
		t.Fatalf("expected price placeholder:\n%s", sink.sent[0])
	}
	if !strings.Contains(sink.sent[0], "1. Pepe (PEPE)") {
		t.Fatalf("trending section should still render:\n%s", sink.sent[0])
	}
}

func TestDigestService_RunDeliversWhenTrendingFails(t *testing.T) {
	t.Parallel()

	fetcher := &mockFetcher{
		prices:   domain.PriceResult{Prices: map[string]float64{"bitcoin": 1}},
		trendErr: domain.ErrPartialData,
	}
	sink := &mockSink{}
	svc := newTestService(t, fetcher, sink, nil, DigestOptions{ChatID: "42", TrendingEnabled: true})

	if _, err := svc.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(sink.sent[0], "Bitcoin: $1") || !strings.Contains(sink.sent[0], "Trending data is currently unavailable.") {
		t.Fatalf("unexpected message:\n%s", sink.sent[0])
	}
}

func TestDigestService_RunSinkFailure(t *testing.T) {
	t.Parallel()

	sinkErr := errors.New("Forbidden: bot was blocked by the user")
	sink := &mockSink{err: sinkErr}
	redis := newFakeRedis()
	recorder := &mockRecorder{}
	svc := newTestService(t, &mockFetcher{}, sink, redis, DigestOptions{ChatID: "42"})
	svc.SetDeliveryRecorder(recorder)

	rec, err := svc.Run(context.Background())
	var deliveryErr *domain.DeliveryError
	if !errors.As(err, &deliveryErr) || !errors.Is(err, sinkErr) {
		t.Fatalf("expected DeliveryError wrapping sink error, got %v", err)
	}
	if rec.Status != domain.DeliveryFailed || rec.Error == "" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if _, ok := redis.data[lastDigestKey]; ok {
		t.Fatal("failed delivery should not be cached")
	}
	if len(recorder.records) != 1 || recorder.records[0].Status != domain.DeliveryFailed {
		t.Fatalf("expected failed record, got %+v", recorder.records)
	}
}

func TestDigestService_RunWithoutDestination(t *testing.T) {
	t.Parallel()

	fetcher := &mockFetcher{}
	svc := newTestService(t, fetcher, &mockSink{}, nil, DigestOptions{})
	if _, err := svc.Run(context.Background()); !errors.Is(err, ErrNoDestination) {
		t.Fatalf("expected ErrNoDestination, got %v", err)
	}
	if fetcher.priceCalls.Load() != 0 {
		t.Fatal("nothing should be fetched without a destination")
	}
}

func TestDigestService_RecorderErrorIsNotFatal(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, &mockFetcher{}, &mockSink{}, nil, DigestOptions{ChatID: "42"})
	svc.SetDeliveryRecorder(&mockRecorder{err: errors.New("db down")})

	if _, err := svc.Run(context.Background()); err != nil {
		t.Fatalf("delivery log failure should be logged only, got %v", err)
	}
}

func TestDigestService_BuildSkipsDisabledSections(t *testing.T) {
	t.Parallel()

	fetcher := &mockFetcher{}
	sentiment := &mockSentiment{point: domain.FearGreed{Value: 20, Classification: "Extreme Fear"}}
	svc := newTestService(t, fetcher, nil, nil, DigestOptions{})
	svc.SetSentimentFetcher(sentiment)

	n, err := svc.Build(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(n.Sections) != 1 || n.Sections[0].Name != domain.SectionPrices {
		t.Fatalf("expected only the price section, got %+v", n.Sections)
	}
	if fetcher.trendCalls.Load() != 0 || sentiment.calls.Load() != 0 {
		t.Fatal("disabled sections should not be fetched")
	}
}

func TestDigestService_BuildWithFearGreed(t *testing.T) {
	t.Parallel()

	sentiment := &mockSentiment{point: domain.FearGreed{Value: 20, Classification: "Extreme Fear"}}
	svc := newTestService(t, &mockFetcher{}, nil, nil, DigestOptions{TrendingEnabled: true, FearGreedEnabled: true})
	svc.SetSentimentFetcher(sentiment)

	n, err := svc.Build(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	names := make([]string, 0, len(n.Sections))
	for _, s := range n.Sections {
		names = append(names, s.Name)
	}
	if strings.Join(names, ",") != "prices,trending,fear_greed" {
		t.Fatalf("unexpected section order: %v", names)
	}
	if !strings.Contains(n.Text(), "20/100 (Extreme Fear)") {
		t.Fatalf("expected sentiment line:\n%s", n.Text())
	}
}

func TestDigestService_BuildFetchesConcurrently(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(2)
	fetcher := &mockFetcher{
		beforePrices:   func() { started.Done(); <-release },
		beforeTrending: func() { started.Done(); <-release },
	}
	svc := newTestService(t, fetcher, nil, nil, DigestOptions{TrendingEnabled: true})

	done := make(chan struct{})
	go func() {
		_, _ = svc.Build(context.Background())
		close(done)
	}()

	started.Wait()
	close(release)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("build did not finish")
	}
}

func TestDigestService_PreviewIsIdempotent(t *testing.T) {
	t.Parallel()

	fetcher := &mockFetcher{
		prices: domain.PriceResult{Prices: map[string]float64{"bitcoin": 50000}},
		coins:  []domain.TrendingCoin{{Name: "Pepe", Symbol: "PEPE"}},
	}
	svc := newTestService(t, fetcher, nil, nil, DigestOptions{TrendingEnabled: true})

	first, err := svc.Preview(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, _ := svc.Preview(context.Background())
	if first != second {
		t.Fatalf("preview should be byte-identical:\n%s\n---\n%s", first, second)
	}
}

func TestDigestService_LastDigest(t *testing.T) {
	t.Parallel()

	redis := newFakeRedis()
	svc := newTestService(t, &mockFetcher{}, &mockSink{}, redis, DigestOptions{ChatID: "42"})

	if _, ok, err := svc.LastDigest(context.Background()); err != nil || ok {
		t.Fatalf("expected cache miss, got ok=%v err=%v", ok, err)
	}

	rec, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap, ok, err := svc.LastDigest(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected cached digest, got ok=%v err=%v", ok, err)
	}
	if snap.RunID != rec.RunID || !strings.Contains(snap.Message, "Current Prices:") {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestDigestService_LastDigestWithoutRedis(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, &mockFetcher{}, nil, nil, DigestOptions{})
	if _, ok, err := svc.LastDigest(context.Background()); ok || err != nil {
		t.Fatalf("expected no digest without redis, got ok=%v err=%v", ok, err)
	}
}

func TestDigestService_PricesOverride(t *testing.T) {
	t.Parallel()

	fetcher := &mockFetcher{prices: domain.PriceResult{Prices: map[string]float64{"dogecoin": 0.1}}}
	svc := newTestService(t, fetcher, nil, nil, DigestOptions{})

	query, result, err := svc.Prices(context.Background(), []string{"DOGECOIN", "dogecoin"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(query.IDs) != 1 || query.IDs[0] != "dogecoin" {
		t.Fatalf("unexpected query: %+v", query)
	}
	if p, ok := result.Price("dogecoin"); !ok || p != 0.1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	query, _, _ = svc.Prices(context.Background(), nil)
	if len(query.IDs) != 3 {
		t.Fatalf("expected configured query, got %+v", query)
	}
}

func TestDigestService_CancelledRunStillRecorded(t *testing.T) {
	t.Parallel()

	sink := &mockSink{}
	recorder := &mockRecorder{}
	svc := newTestService(t, &mockFetcher{}, sink, nil, DigestOptions{ChatID: "42"})
	svc.SetDeliveryRecorder(recorder)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Run(ctx)
	var deliveryErr *domain.DeliveryError
	if !errors.As(err, &deliveryErr) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected DeliveryError wrapping context.Canceled, got %v", err)
	}
	if len(sink.sent) != 0 {
		t.Fatal("cancelled run must not send")
	}
	if len(recorder.records) != 1 || recorder.records[0].Status != domain.DeliveryFailed {
		t.Fatalf("expected one failed record, got %+v", recorder.records)
	}
	if recorder.ctxErrs[0] != nil {
		t.Fatalf("delivery log write got a cancelled context: %v", recorder.ctxErrs[0])
	}
}

func TestDigestService_DryRunRecordsWithoutSending(t *testing.T) {
	t.Parallel()

	fetcher := &mockFetcher{
		prices: domain.PriceResult{Currency: "usd", Prices: map[string]float64{"bitcoin": 50000}},
	}
	sink := &mockSink{}
	recorder := &mockRecorder{}
	svc := newTestService(t, fetcher, sink, nil, DigestOptions{ChatID: "42"})
	svc.SetDeliveryRecorder(recorder)

	rec, text, err := svc.DryRun(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(text, "Bitcoin: $50000") {
		t.Fatalf("unexpected dry run text:\n%s", text)
	}
	if len(sink.sent) != 0 {
		t.Fatal("dry run must not send")
	}
	if rec.Status != domain.DeliveryDryRun || rec.MessageChars != len([]rune(text)) {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if len(recorder.records) != 1 || recorder.records[0].Status != domain.DeliveryDryRun {
		t.Fatalf("expected one dry_run record, got %+v", recorder.records)
	}
}

type mockFetcher struct {
	prices   domain.PriceResult
	priceErr error
	coins    []domain.TrendingCoin
	trendErr error

	beforePrices   func()
	beforeTrending func()

	priceCalls atomic.Int32
	trendCalls atomic.Int32
}

func (m *mockFetcher) FetchPrices(ctx context.Context, query domain.PriceQuery) (domain.PriceResult, error) {
	m.priceCalls.Add(1)
	if m.beforePrices != nil {
		m.beforePrices()
	}
	return m.prices, m.priceErr
}

func (m *mockFetcher) FetchTrending(ctx context.Context) ([]domain.TrendingCoin, error) {
	m.trendCalls.Add(1)
	if m.beforeTrending != nil {
		m.beforeTrending()
	}
	return m.coins, m.trendErr
}

type mockSentiment struct {
	point domain.FearGreed
	err   error
	calls atomic.Int32
}

func (m *mockSentiment) FetchFearGreed(ctx context.Context) (domain.FearGreed, error) {
	m.calls.Add(1)
	return m.point, m.err
}

type mockSink struct {
	err     error
	sent    []string
	chatIDs []string
}

func (m *mockSink) Send(ctx context.Context, chatID, text string) error {
	if m.err != nil {
		return m.err
	}
	m.chatIDs = append(m.chatIDs, chatID)
	m.sent = append(m.sent, text)
	return nil
}

type mockRecorder struct {
	err     error
	records []domain.DeliveryRecord
	ctxErrs []error
}

func (m *mockRecorder) RecordDelivery(ctx context.Context, rec domain.DeliveryRecord) error {
	m.records = append(m.records, rec)
	m.ctxErrs = append(m.ctxErrs, ctx.Err())
	return m.err
}

type fakeRedis struct {
	data   map[string][]byte
	setErr error
	getErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string][]byte)}
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	switch v := value.(type) {
	case []byte:
		f.data[key] = append([]byte(nil), v...)
	case string:
		f.data[key] = []byte(v)
	default:
		bytes, _ := json.Marshal(v)
		f.data[key] = bytes
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	if v, ok := f.data[key]; ok {
		return redis.NewStringResult(string(v), nil)
	}
	return redis.NewStringResult("", redis.Nil)
}
