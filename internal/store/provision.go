package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/scribe/internal/transcript"
)

// DefaultCompletionField is the messages column that moves from zero to
// non-zero once the answer has been fully generated.
const DefaultCompletionField = "answer_tokens"

// maxPayloadBytes keeps NOTIFY payloads below the server's 8000 byte limit.
// Longer payloads are resent with shortened text instead of failing the
// writer's transaction.
const maxPayloadBytes = 7900

// Statement is one provisioning step.
type Statement struct {
	Name string
	SQL  string
}

// ProvisionOptions selects which triggers are created.
type ProvisionOptions struct {
	Channels        []string
	CompletionField string
}

// Beginner is satisfied by *pgx.Conn and *pgxpool.Pool.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Provision installs the notify functions and triggers for opts.Channels in
// a single transaction. Every statement is create-or-replace, so repeated
// calls converge on the same schema.
func Provision(ctx context.Context, db Beginner, opts ProvisionOptions) error {
	stmts, err := ProvisionStatements(opts)
	if err != nil {
		return &ProvisioningError{Step: "plan", Err: err}
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return &ProvisioningError{Step: "begin", Err: err}
	}
	defer tx.Rollback(ctx)

	for _, st := range stmts {
		if _, err := tx.Exec(ctx, st.SQL); err != nil {
			return &ProvisioningError{Step: st.Name, Err: err}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return &ProvisioningError{Step: "commit", Err: err}
	}
	return nil
}

// ProvisionStatements returns the statements Provision runs, in order.
func ProvisionStatements(opts ProvisionOptions) ([]Statement, error) {
	field := opts.CompletionField
	if field == "" {
		field = DefaultCompletionField
	}

	var stmts []Statement
	var messageFn, conversationFn bool
	for _, ch := range opts.Channels {
		switch ch {
		case transcript.ChannelNewMessage, transcript.ChannelMessageUpdated:
			if !messageFn {
				stmts = append(stmts, Statement{Name: "function scribe_notify_message", SQL: messageFunctionSQL()})
				messageFn = true
			}
		case transcript.ChannelNewConversation:
			if !conversationFn {
				stmts = append(stmts, Statement{Name: "function scribe_notify_conversation", SQL: conversationFunctionSQL})
				conversationFn = true
			}
		default:
			return nil, fmt.Errorf("no trigger for channel %q", ch)
		}
	}

	for _, ch := range opts.Channels {
		var name, table, event, when, fn string
		switch ch {
		case transcript.ChannelNewMessage:
			name, table, event, fn = "scribe_message_insert", "messages", "INSERT", "scribe_notify_message"
		case transcript.ChannelMessageUpdated:
			col := pgx.Identifier{field}.Sanitize()
			name, table, event, fn = "scribe_message_completed", "messages", "UPDATE", "scribe_notify_message"
			when = fmt.Sprintf("WHEN (OLD.%s = 0 AND NEW.%s > 0)", col, col)
		case transcript.ChannelNewConversation:
			name, table, event, fn = "scribe_conversation_insert", "conversations", "INSERT", "scribe_notify_conversation"
		}
		stmts = append(stmts,
			Statement{
				Name: "drop trigger " + name,
				SQL:  fmt.Sprintf("DROP TRIGGER IF EXISTS %s ON %s", name, table),
			},
			Statement{
				Name: "create trigger " + name,
				SQL: strings.Join(strings.Fields(fmt.Sprintf(
					"CREATE TRIGGER %s AFTER %s ON %s FOR EACH ROW %s EXECUTE FUNCTION %s('%s')",
					name, event, table, when, fn, ch)), " "),
			},
		)
	}
	return stmts, nil
}

// The channel is passed as the trigger argument so insert and update
// triggers share one function.
func messageFunctionSQL() string {
	return fmt.Sprintf(`
CREATE OR REPLACE FUNCTION scribe_notify_message()
RETURNS TRIGGER AS $$
DECLARE
    payload text;
BEGIN
    payload := json_build_object(
        'id', NEW.id,
        'conversation_id', NEW.conversation_id,
        'created_at', NEW.created_at,
        'query', NEW.query,
        'answer', NEW.answer,
        'from_account_id', NEW.from_account_id
    )::text;
    IF octet_length(payload) > %d THEN
        payload := json_build_object(
            'id', NEW.id,
            'conversation_id', NEW.conversation_id,
            'created_at', NEW.created_at,
            'query', left(NEW.query, 400),
            'answer', left(NEW.answer, 1200),
            'from_account_id', NEW.from_account_id,
            'truncated', true
        )::text;
    END IF;
    PERFORM pg_notify(TG_ARGV[0], payload);
    RETURN NEW;
END;
$$ LANGUAGE plpgsql`, maxPayloadBytes)
}

const conversationFunctionSQL = `
CREATE OR REPLACE FUNCTION scribe_notify_conversation()
RETURNS TRIGGER AS $$
BEGIN
    PERFORM pg_notify(TG_ARGV[0], json_build_object(
        'id', NEW.id,
        'name', NEW.name,
        'created_at', NEW.created_at
    )::text);
    RETURN NEW;
END;
$$ LANGUAGE plpgsql`
