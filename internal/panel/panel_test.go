package panel

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/joingate/internal/approval"
	"github.com/memohai/joingate/internal/channels"
	"github.com/memohai/joingate/internal/ledger"
	"github.com/memohai/joingate/internal/logger"
	"github.com/memohai/joingate/internal/storage"
)

const operatorID = int64(100)

type sentView struct {
	chatID    int64
	messageID int
	edit      bool
	view      View
}

type fakeResponder struct {
	mu      sync.Mutex
	views   []sentView
	answers []string
	nextID  int
}

func (r *fakeResponder) Send(ctx context.Context, chatID int64, view View) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.views = append(r.views, sentView{chatID: chatID, messageID: r.nextID, view: view})
	return r.nextID, nil
}

func (r *fakeResponder) Edit(ctx context.Context, chatID int64, messageID int, view View) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, sentView{chatID: chatID, messageID: messageID, edit: true, view: view})
	return nil
}

func (r *fakeResponder) Answer(ctx context.Context, callbackID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.answers = append(r.answers, callbackID)
	return nil
}

func (r *fakeResponder) last(t *testing.T) sentView {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.views)
	return r.views[len(r.views)-1]
}

type fakeGateway struct {
	info    channels.ChatInfo
	infoErr error
	admin   bool
}

func (g *fakeGateway) ChatInfo(ctx context.Context, channelID string) (channels.ChatInfo, error) {
	if g.infoErr != nil {
		return channels.ChatInfo{}, g.infoErr
	}
	info := g.info
	info.ID = channelID
	return info, nil
}

func (g *fakeGateway) IsBotAdmin(ctx context.Context, channelID string) (bool, error) {
	return g.admin, nil
}

type fakeApprover struct {
	mu       sync.Mutex
	result   approval.Result
	err      error
	allCalls []string
	sampleN  []int
}

func (a *fakeApprover) ApproveAll(ctx context.Context, channelID string) (approval.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.allCalls = append(a.allCalls, channelID)
	return a.result, a.err
}

func (a *fakeApprover) ApproveSample(ctx context.Context, channelID string, n int) (approval.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sampleN = append(a.sampleN, n)
	if n <= 0 {
		return approval.Result{}, approval.ErrInvalidCount
	}
	return a.result, a.err
}

type fakeStats struct {
	sum ledger.Summary
}

func (s fakeStats) Summarize(ctx context.Context, channelID string) (ledger.Summary, error) {
	return s.sum, nil
}

type fixture struct {
	panel     *Panel
	responder *fakeResponder
	registry  channels.Store
	gateway   *fakeGateway
	approver  *fakeApprover
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	p, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	f := &fixture{
		responder: &fakeResponder{},
		registry:  channels.NewFileStore(p),
		gateway:   &fakeGateway{info: channels.ChatInfo{Title: "News", Username: "news"}, admin: true},
		approver:  &fakeApprover{},
	}
	f.panel = New(logger.Discard(), Deps{
		Operators: NewOperators([]int64{operatorID}),
		Registry:  f.registry,
		Stats:     fakeStats{sum: ledger.Summary{Pending: 5, LastDay: 2, LastMonth: 4}},
		Approver:  f.approver,
		Gateway:   f.gateway,
		Responder: f.responder,
	})
	return f
}

func press(data string) Press {
	return Press{ID: "cb", ChatID: operatorID, MessageID: 9, UserID: operatorID, Data: data}
}

func text(s string) Message {
	return Message{ChatID: operatorID, UserID: operatorID, Text: s}
}

func TestNonOperatorIsDenied(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	stranger := int64(7)

	require.NoError(t, f.panel.HandleCommand(ctx, Message{ChatID: stranger, UserID: stranger, Text: "/start"}))
	assert.Equal(t, textDenied, f.responder.last(t).view.Text)

	require.NoError(t, f.panel.HandlePress(ctx, Press{ID: "x", ChatID: stranger, UserID: stranger, Data: Callback(ActionRemove, "-1001")}))
	assert.Equal(t, textDenied, f.responder.last(t).view.Text)

	require.NoError(t, f.panel.HandleText(ctx, Message{ChatID: stranger, UserID: stranger, Text: "-100123"}))
	assert.Equal(t, textDenied, f.responder.last(t).view.Text)

	assert.Empty(t, f.approver.allCalls)
	list, err := f.registry.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStartShowsMainMenu(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	require.NoError(t, f.panel.HandleCommand(context.Background(), text("/start@joingate_bot")))
	got := f.responder.last(t)
	assert.Equal(t, textWelcome, got.view.Text)
	assert.Equal(t, mainMenuRows(), got.view.Rows)
}

func TestAddChannelFlow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.panel.HandlePress(ctx, press(ActionAddChannel)))
	assert.Equal(t, textAddPrompt, f.responder.last(t).view.Text)

	require.NoError(t, f.panel.HandleText(ctx, text("-100555")))
	preview := f.responder.last(t).view
	assert.Contains(t, preview.Text, "News")
	assert.Contains(t, preview.Text, "@news")
	assert.Contains(t, preview.Text, "-100555")
	require.Len(t, preview.Rows, 1)
	assert.Equal(t, Callback(ActionConfirm, "-100555"), preview.Rows[0][0].Data)

	require.NoError(t, f.panel.HandlePress(ctx, press(Callback(ActionConfirm, "-100555"))))
	assert.True(t, strings.HasPrefix(f.responder.last(t).view.Text, "✅ Channel added!"))

	rec, ok, err := f.registry.Load(ctx, "-100555")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "News", rec.Title)
	assert.True(t, rec.IsBotAdmin)

	// confirming again without a fresh preview is rejected
	require.NoError(t, f.panel.HandlePress(ctx, press(Callback(ActionConfirm, "-100555"))))
	assert.Equal(t, textPreviewMissing, f.responder.last(t).view.Text)
}

func TestConfirmRequiresMatchingPreview(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.panel.HandleText(ctx, text("-100555")))
	require.NoError(t, f.panel.HandlePress(ctx, press(Callback(ActionConfirm, "-100999"))))
	assert.Equal(t, textPreviewMissing, f.responder.last(t).view.Text)
	_, ok, err := f.registry.Load(ctx, "-100999")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAddChannelValidation(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"missing prefix", "-123456", textInvalidChatID},
		{"count without session", "15", textNoSession},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			require.NoError(t, f.panel.HandleText(context.Background(), text(tc.input)))
			assert.Equal(t, tc.want, f.responder.last(t).view.Text)
		})
	}
}

func TestAddChannelFetchFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.gateway.infoErr = errors.New("chat not found")
	require.NoError(t, f.panel.HandleText(context.Background(), text("-100555")))
	assert.Equal(t, textFetchFailed, f.responder.last(t).view.Text)
}

func TestChannelDetailShowsStats(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.registry.Save(ctx, channels.Record{ID: "-1001", Title: "Daily"}))

	require.NoError(t, f.panel.HandlePress(ctx, press(Callback(ActionChannel, "-1001"))))
	view := f.responder.last(t).view
	for _, want := range []string{"Daily", "Pending: 5", "Last 24 hours: 2", "Last 30 days: 4", "✅ Yes"} {
		assert.Contains(t, view.Text, want)
	}
	require.Len(t, view.Rows, 4)
	assert.Equal(t, Callback(ActionAcceptAll, "-1001"), view.Rows[0][0].Data)

	require.NoError(t, f.panel.HandlePress(ctx, press(Callback(ActionChannel, "-1009"))))
	assert.Equal(t, textChannelNotFound, f.responder.last(t).view.Text)
}

func TestChannelDetailStoresLiveRights(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.registry.Save(ctx, channels.Record{ID: "-1001", Title: "Daily", IsBotAdmin: false}))

	require.NoError(t, f.panel.HandlePress(ctx, press(Callback(ActionChannel, "-1001"))))
	rec, _, err := f.registry.Load(ctx, "-1001")
	require.NoError(t, err)
	assert.True(t, rec.IsBotAdmin)

	f.gateway.admin = false
	require.NoError(t, f.panel.HandlePress(ctx, press(Callback(ActionChannel, "-1001"))))
	rec, _, err = f.registry.Load(ctx, "-1001")
	require.NoError(t, err)
	assert.False(t, rec.IsBotAdmin)
	assert.Contains(t, f.responder.last(t).view.Text, "Bot is admin: ❌ No")
}

func TestApproveAllOutcomes(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		result approval.Result
		err    error
		want   string
	}{
		{"success", approval.Result{Success: 4, Failure: 1, Total: 5}, nil, "Successful: 4"},
		{"empty", approval.Result{Empty: true}, nil, textNoPending},
		{"no rights", approval.Result{}, approval.ErrNotChannelAdmin, textNotAdmin},
		{"gateway error", approval.Result{}, errors.New("boom"), textAccessFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			f.approver.result = tc.result
			f.approver.err = tc.err
			require.NoError(t, f.panel.HandlePress(context.Background(), press(Callback(ActionAcceptAll, "-1001"))))
			assert.Contains(t, f.responder.last(t).view.Text, tc.want)
			assert.Equal(t, []string{"-1001"}, f.approver.allCalls)
		})
	}
}

func TestApproveCountFlow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.approver.result = approval.Result{Success: 2, Selected: 2, Total: 2}

	require.NoError(t, f.panel.HandlePress(ctx, press(Callback(ActionAcceptCount, "-1001"))))
	assert.Equal(t, textCountPrompt, f.responder.last(t).view.Text)

	require.NoError(t, f.panel.HandleText(ctx, text("abc-")))
	// unrelated text while waiting is treated as a malformed count
	assert.Equal(t, textCountInvalid, f.responder.last(t).view.Text)

	require.NoError(t, f.panel.HandleText(ctx, text("0")))
	assert.Equal(t, textCountNotPositive, f.responder.last(t).view.Text)
	assert.Empty(t, f.approver.sampleN)

	require.NoError(t, f.panel.HandleText(ctx, text("3")))
	f.responder.mu.Lock()
	progress := f.responder.views[len(f.responder.views)-2]
	f.responder.mu.Unlock()
	// the requested count may exceed the pending set, so progress names no number
	assert.Equal(t, textApproving, progress.view.Text)
	last := f.responder.last(t)
	assert.True(t, last.edit)
	assert.Contains(t, last.view.Text, "2 of 2 users approved")
	assert.Equal(t, []int{3}, f.approver.sampleN)

	// the session is consumed
	require.NoError(t, f.panel.HandleText(ctx, text("3")))
	assert.Equal(t, textNoSession, f.responder.last(t).view.Text)
}

func TestCancelClearsSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.panel.HandlePress(ctx, press(Callback(ActionAcceptCount, "-1001"))))
	require.NoError(t, f.panel.HandlePress(ctx, press(ActionCancel)))
	assert.Equal(t, textCancelled, f.responder.last(t).view.Text)

	require.NoError(t, f.panel.HandleText(ctx, text("4")))
	assert.Equal(t, textNoSession, f.responder.last(t).view.Text)
	assert.Empty(t, f.approver.sampleN)
}

func TestRemoveChannel(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.registry.Save(ctx, channels.Record{ID: "-1001", Title: "Daily"}))
	require.NoError(t, f.panel.HandlePress(ctx, press(Callback(ActionRemove, "-1001"))))
	assert.Contains(t, f.responder.last(t).view.Text, "removed")
	_, ok, err := f.registry.Load(ctx, "-1001")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseCallback(t *testing.T) {
	t.Parallel()
	cases := []struct {
		data    string
		action  string
		channel string
	}{
		{"cancel", ActionCancel, ""},
		{"channel:-100123", ActionChannel, "-100123"},
		{"accept_count:-100123", ActionAcceptCount, "-100123"},
		{" confirm:-1 ", ActionConfirm, "-1"},
	}
	for _, tc := range cases {
		action, channel := ParseCallback(tc.data)
		if action != tc.action || channel != tc.channel {
			t.Fatalf("ParseCallback(%q) = %q, %q", tc.data, action, channel)
		}
	}
}

func TestParseChannelID(t *testing.T) {
	t.Parallel()
	if id, err := ParseChannelID(" -1001234 "); err != nil || id != "-1001234" {
		t.Fatalf("unexpected result %q %v", id, err)
	}
	for _, bad := range []string{"", "-100", "1001234", "-200123", "-100abc"} {
		if _, err := ParseChannelID(bad); !errors.Is(err, ErrInvalidChatID) {
			t.Fatalf("%q: expected ErrInvalidChatID, got %v", bad, err)
		}
	}
}

func TestOperators(t *testing.T) {
	t.Parallel()
	ops := NewOperators([]int64{3, 1, 2, 1})
	assert.Equal(t, []int64{1, 2, 3}, ops.IDs())
	assert.True(t, ops.Contains(2))
	assert.False(t, ops.Contains(9))
	var none *Operators
	assert.False(t, none.Contains(1))
}
