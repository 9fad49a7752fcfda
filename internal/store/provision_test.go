package store

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MikeSquared-Agency/scribe/internal/transcript"
)

// fakeTx records statements. Methods not overridden panic via the nil
// embedded interface, which keeps the fake honest about what Provision uses.
type fakeTx struct {
	pgx.Tx
	execs      []string
	failOn     string
	committed  bool
	rolledBack bool
}

func (f *fakeTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	if f.failOn != "" && strings.Contains(sql, f.failOn) {
		return pgconn.CommandTag{}, errors.New(`relation "messages" does not exist`)
	}
	return pgconn.CommandTag{}, nil
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	if f.committed {
		return pgx.ErrTxClosed
	}
	f.rolledBack = true
	return nil
}

type fakeDB struct {
	tx       *fakeTx
	beginErr error
}

func (d *fakeDB) Begin(context.Context) (pgx.Tx, error) {
	if d.beginErr != nil {
		return nil, d.beginErr
	}
	return d.tx, nil
}

func allChannels() []string {
	return []string{transcript.ChannelNewMessage, transcript.ChannelMessageUpdated, transcript.ChannelNewConversation}
}

func TestProvisionStatements_AllChannels(t *testing.T) {
	stmts, err := ProvisionStatements(ProvisionOptions{Channels: allChannels()})
	if err != nil {
		t.Fatalf("ProvisionStatements failed: %v", err)
	}

	// two functions + drop/create per channel
	if len(stmts) != 2+2*3 {
		t.Fatalf("expected 8 statements, got %d", len(stmts))
	}
	if !strings.Contains(stmts[0].SQL, "CREATE OR REPLACE FUNCTION scribe_notify_message()") {
		t.Errorf("first statement should create the message function, got %q", stmts[0].SQL)
	}
	if !strings.Contains(stmts[1].SQL, "CREATE OR REPLACE FUNCTION scribe_notify_conversation()") {
		t.Errorf("second statement should create the conversation function, got %q", stmts[1].SQL)
	}

	byName := map[string]string{}
	for _, st := range stmts {
		byName[st.Name] = st.SQL
	}

	want := map[string]string{
		"drop trigger scribe_message_insert":        "DROP TRIGGER IF EXISTS scribe_message_insert ON messages",
		"create trigger scribe_message_insert":      "CREATE TRIGGER scribe_message_insert AFTER INSERT ON messages FOR EACH ROW EXECUTE FUNCTION scribe_notify_message('new_message')",
		"create trigger scribe_message_completed":   `CREATE TRIGGER scribe_message_completed AFTER UPDATE ON messages FOR EACH ROW WHEN (OLD."answer_tokens" = 0 AND NEW."answer_tokens" > 0) EXECUTE FUNCTION scribe_notify_message('message_updated')`,
		"create trigger scribe_conversation_insert": "CREATE TRIGGER scribe_conversation_insert AFTER INSERT ON conversations FOR EACH ROW EXECUTE FUNCTION scribe_notify_conversation('new_conversation')",
	}
	for name, sql := range want {
		if byName[name] != sql {
			t.Errorf("%s:\ngot:  %q\nwant: %q", name, byName[name], sql)
		}
	}
}

func TestProvisionStatements_MessageFunctionSharedOnce(t *testing.T) {
	stmts, err := ProvisionStatements(ProvisionOptions{
		Channels: []string{transcript.ChannelNewMessage, transcript.ChannelMessageUpdated},
	})
	if err != nil {
		t.Fatalf("ProvisionStatements failed: %v", err)
	}
	count := 0
	for _, st := range stmts {
		if strings.Contains(st.SQL, "FUNCTION scribe_notify_message()") {
			count++
		}
		if strings.Contains(st.SQL, "conversations") {
			t.Errorf("unexpected conversation statement %q", st.SQL)
		}
	}
	if count != 1 {
		t.Errorf("message function created %d times, want 1", count)
	}
}

func TestProvisionStatements_CustomCompletionField(t *testing.T) {
	stmts, err := ProvisionStatements(ProvisionOptions{
		Channels:        []string{transcript.ChannelMessageUpdated},
		CompletionField: `weird"col`,
	})
	if err != nil {
		t.Fatalf("ProvisionStatements failed: %v", err)
	}
	last := stmts[len(stmts)-1].SQL
	if !strings.Contains(last, `OLD."weird""col" = 0 AND NEW."weird""col" > 0`) {
		t.Errorf("completion field not quoted: %q", last)
	}
}

func TestProvisionStatements_UnknownChannel(t *testing.T) {
	if _, err := ProvisionStatements(ProvisionOptions{Channels: []string{"new-message"}}); err == nil {
		t.Fatal("expected error for unknown channel")
	}
}

func TestProvisionStatements_PayloadLimit(t *testing.T) {
	sql := messageFunctionSQL()
	if !strings.Contains(sql, "octet_length(payload) > 7900") {
		t.Errorf("message function should guard the payload size: %s", sql)
	}
	if !strings.Contains(sql, "'truncated', true") {
		t.Errorf("shortened payload should be flagged: %s", sql)
	}
}

func TestProvision_CommitsAll(t *testing.T) {
	tx := &fakeTx{}
	if err := Provision(context.Background(), &fakeDB{tx: tx}, ProvisionOptions{Channels: allChannels()}); err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	if !tx.committed {
		t.Error("expected commit")
	}
	if tx.rolledBack {
		t.Error("committed transaction should not be rolled back")
	}
	if len(tx.execs) != 8 {
		t.Errorf("expected 8 statements executed, got %d", len(tx.execs))
	}
}

func TestProvision_RollsBackOnFailure(t *testing.T) {
	tx := &fakeTx{failOn: "CREATE TRIGGER scribe_message_insert"}
	err := Provision(context.Background(), &fakeDB{tx: tx}, ProvisionOptions{Channels: allChannels()})

	var pe *ProvisioningError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProvisioningError, got %v", err)
	}
	if pe.Step != "create trigger scribe_message_insert" {
		t.Errorf("Step = %q", pe.Step)
	}
	if !tx.rolledBack {
		t.Error("expected rollback")
	}
	if tx.committed {
		t.Error("failed provisioning must not commit")
	}
}

func TestProvision_BeginFailure(t *testing.T) {
	err := Provision(context.Background(), &fakeDB{beginErr: errors.New("conn busy")}, ProvisionOptions{Channels: allChannels()})
	var pe *ProvisioningError
	if !errors.As(err, &pe) || pe.Step != "begin" {
		t.Fatalf("expected begin ProvisioningError, got %v", err)
	}
}

func TestSessionClose_NilSafe(t *testing.T) {
	var s *Session
	if err := s.Close(context.Background()); err != nil {
		t.Errorf("nil Close returned %v", err)
	}
	if err := (&Session{}).Close(context.Background()); err != nil {
		t.Errorf("unopened Close returned %v", err)
	}
}

func TestConnectionError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := error(&ConnectionError{Stage: "wait", Err: cause})
	if !errors.Is(err, cause) {
		t.Error("ConnectionError should unwrap to its cause")
	}
	if err.Error() != "wait: boom" {
		t.Errorf("Error() = %q", err.Error())
	}
}
