package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leojscalabrin/glorpinia-AI/bridge"
	"github.com/leojscalabrin/glorpinia-AI/db"
	"github.com/leojscalabrin/glorpinia-AI/ledger"
	"github.com/leojscalabrin/glorpinia-AI/slots"
	"github.com/leojscalabrin/glorpinia-AI/testutil"
)

const bot = "glorpinia"

type recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recorder) Say(channel, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, channel+": "+text)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

type genFunc func(ctx context.Context, author, prompt string) (string, error)

func (f genFunc) Generate(ctx context.Context, author, prompt string) (string, error) {
	return f(ctx, author, prompt)
}

type alwaysLive struct{}

func (alwaysLive) IsLive(string) bool { return true }

type fixture struct {
	h   *Handler
	l   *ledger.Ledger
	dbx *db.DB
	out *recorder
}

func setup(t *testing.T, gen genFunc) fixture {
	t.Helper()
	dbx := testutil.OpenTestDB(t)
	l := ledger.New(ledger.NewStore(dbx), ledger.NewValidator(), bot, nil)
	m, err := slots.NewMachine(l, slots.Options{Live: alwaysLive{}})
	require.NoError(t, err)
	out := &recorder{}
	opts := HandlerOptions{
		BotName: bot,
		Ledger:  l,
		Slots:   m,
		Bridge:  bridge.New(l, bridge.Options{House: bot}),
		Sender:  out,
		Pool:    NewPool(2),
	}
	if gen != nil {
		opts.Generator = gen
	}
	return fixture{h: NewHandler(opts), l: l, dbx: dbx, out: out}
}

func TestHandleInteractionEarnsCookie(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	f.h.Handle(ctx, Message{Channel: "glorp", User: "Alice", Text: "hello chat"})
	f.h.Handle(ctx, Message{Channel: "glorp", User: "alice", Text: "again"})
	f.h.Handle(ctx, Message{Channel: "glorp", User: "Glorpinia", Text: "I am the bot"})
	f.h.Handle(ctx, Message{Channel: "glorp", User: "nightbot", Text: "!uptime"})

	assert.Equal(t, map[string]int64{"alice": 2}, testutil.Balances(t, f.dbx))
	assert.Empty(t, f.out.all())
}

func TestCookiesCommand(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	require.True(t, f.l.AddCookies(ctx, "alice", 42))
	require.True(t, f.l.AddCookies(ctx, "bob", 7))

	f.h.Handle(ctx, Message{Channel: "glorp", User: "alice", Text: "!glorp cookies"})
	f.h.Handle(ctx, Message{Channel: "glorp", User: "alice", Text: "!GLORP cookies @Bob"})

	assert.Equal(t, []string{
		"glorp: @alice, você tem 42 🍪",
		"glorp: @alice, bob tem 7 🍪",
	}, f.out.all())
	// commands do not earn interaction cookies
	assert.Equal(t, int64(42), f.l.GetBalance(ctx, "alice"))
}

func TestTopCommand(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	f.h.Handle(ctx, Message{Channel: "glorp", User: "carol", Text: "!glorp top"})
	require.True(t, f.l.AddCookies(ctx, "alice", 120))
	require.True(t, f.l.AddCookies(ctx, "bob", 80))
	require.True(t, f.l.AddCookies(ctx, bot, 1000))
	f.h.Handle(ctx, Message{Channel: "glorp", User: "carol", Text: "!glorp top"})

	assert.Equal(t, []string{
		"glorp: Ninguém tem cookies ainda. Sadge",
		"glorp: 1. alice (120) | 2. bob (80)",
	}, f.out.all())
}

func TestSlotsCommandClosedWhileLive(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	require.True(t, f.l.AddCookies(ctx, "alice", 100))

	f.h.Handle(ctx, Message{Channel: "glorp", User: "alice", Text: "!glorp slots 50"})

	msgs := f.out.all()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "@alice, o cassino fecha")
	assert.Equal(t, int64(100), f.l.GetBalance(ctx, "alice"))
}

func TestUnknownCommandShowsHelp(t *testing.T) {
	f := setup(t, nil)
	f.h.Handle(context.Background(), Message{Channel: "glorp", User: "alice", Text: "!glorp dance"})
	msgs := f.out.all()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "!glorp slots")
}

func TestMentionRepliesThroughBridge(t *testing.T) {
	var gotPrompt, gotAuthor string
	f := setup(t, func(_ context.Context, author, prompt string) (string, error) {
		gotAuthor, gotPrompt = author, prompt
		return "claro! [[COOKIE:GIVE:alice:15]] aproveita", nil
	})
	ctx := context.Background()

	f.h.Handle(ctx, Message{Channel: "glorp", User: "Alice", Text: "@Glorpinia me da cookies?"})
	f.h.Pool().Wait()

	assert.Equal(t, "alice", gotAuthor)
	assert.Equal(t, "me da cookies?", gotPrompt)
	assert.Equal(t, []string{"glorp: @alice claro! (+15 🍪) aproveita"}, f.out.all())
	// one interaction cookie plus the directive
	assert.Equal(t, int64(16), f.l.GetBalance(ctx, "alice"))
}

func TestMentionGenerationErrorIsSilent(t *testing.T) {
	f := setup(t, func(context.Context, string, string) (string, error) {
		return "", errors.New("quota")
	})
	f.h.Handle(context.Background(), Message{Channel: "glorp", User: "alice", Text: "glorpinia oi"})
	f.h.Pool().Wait()
	assert.Empty(t, f.out.all())
}

func TestMentionReplyIsTruncated(t *testing.T) {
	f := setup(t, func(context.Context, string, string) (string, error) {
		return strings.Repeat("🍪", 200), nil
	})
	f.h.Handle(context.Background(), Message{Channel: "glorp", User: "alice", Text: "glorpinia spam"})
	f.h.Pool().Wait()

	msgs := f.out.all()
	require.Len(t, msgs, 1)
	reply := strings.TrimPrefix(msgs[0], "glorp: ")
	assert.LessOrEqual(t, len(reply), MaxReplyBytes)
	assert.True(t, strings.HasSuffix(reply, "🍪"))
}

func TestBareMentionIsIgnored(t *testing.T) {
	called := false
	f := setup(t, func(context.Context, string, string) (string, error) {
		called = true
		return "oi", nil
	})
	f.h.Handle(context.Background(), Message{Channel: "glorp", User: "alice", Text: "@glorpinia"})
	f.h.Pool().Wait()
	assert.False(t, called)
	assert.Equal(t, int64(1), f.l.GetBalance(context.Background(), "alice"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab", Truncate("abc", 2))
	// "é" is two bytes; cutting inside it backs off to the rune start
	assert.Equal(t, "a", Truncate("aé", 2))
}

func TestPoolBoundsConcurrency(t *testing.T) {
	p := NewPool(2)
	var (
		mu      sync.Mutex
		running int
		peak    int
	)
	release := make(chan struct{})
	for range 5 {
		p.Go(context.Background(), func(context.Context) {
			mu.Lock()
			running++
			peak = max(peak, running)
			mu.Unlock()
			<-release
			mu.Lock()
			running--
			mu.Unlock()
		})
	}
	assert.Eventually(t, func() bool { return p.Active() == 2 }, time.Second, 5*time.Millisecond)
	close(release)
	p.Wait()
	assert.Equal(t, 2, peak)
	assert.Equal(t, 0, p.Active())
}

func TestPoolDropsJobsOnCancel(t *testing.T) {
	p := NewPool(1)
	block := make(chan struct{})
	p.Go(context.Background(), func(context.Context) { <-block })
	assert.Eventually(t, func() bool { return p.Active() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := false
	p.Go(ctx, func(context.Context) { ran = true })
	close(block)
	p.Wait()
	assert.False(t, ran)
}

func TestIRCToken(t *testing.T) {
	assert.Equal(t, "oauth:abc", ircToken("abc"))
	assert.Equal(t, "oauth:abc", ircToken(" oauth:abc "))
	assert.Equal(t, "", ircToken(""))
}
