package tool

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/conclave-ai/conclave/pkg/models"
)

func implSendMessage(_ context.Context, tc *Context, args map[string]any) (string, error) {
	to := argString(args, "to")
	content := argString(args, "content")
	from := tc.Sender()

	if strings.EqualFold(to, "all") {
		// The human-facing mailboxes are not broadcast targets; a worker
		// message landing there would read as human input at the
		// coordinator's yield point.
		recipients := tc.Messages.Broadcast(from, content, "human", "human_to_coordinator")
		tc.Emit("message.broadcast", map[string]any{"from": from, "recipients": len(recipients)})
		return fmt.Sprintf("Broadcast sent to %d recipients.", len(recipients)), nil
	}

	tc.Messages.Send(from, to, content)
	tc.Emit("message.sent", map[string]any{
		"from":    from,
		"to":      to,
		"content": truncateString(content, 200),
	})
	return "Message sent to " + to + ".", nil
}

func implCheckMessages(_ context.Context, tc *Context, _ map[string]any) (string, error) {
	msgs := tc.Messages.Receive(tc.Sender())
	if len(msgs) == 0 {
		return "No new messages.", nil
	}
	parts := make([]string, len(msgs))
	for i, m := range msgs {
		parts[i] = fmt.Sprintf("FROM %s: %s", m.From, m.Content)
	}
	return strings.Join(parts, "\n---\n"), nil
}

func implAskHuman(ctx context.Context, tc *Context, args map[string]any) (string, error) {
	question := argString(args, "question")
	from := tc.Sender()

	if tc.Worker != nil {
		tc.Pool.SetStatus(tc.Worker.ID, models.WorkerStatusWaitingForHuman)
		defer tc.Pool.SetStatus(tc.Worker.ID, models.WorkerStatusBusy)
	}

	tc.Emit("human.question", map[string]any{"question": question, "from": from})
	tc.Messages.Send(from, "human", "[QUESTION] "+question)

	timer := time.NewTimer(tc.HumanTimeout)
	defer timer.Stop()

	select {
	case response := <-tc.HumanResponses:
		tc.Emit("human.response", map[string]any{"response": truncateString(response, 200)})
		return "Human responded: " + response, nil
	case <-timer.C:
		return "Human did not respond within timeout. Proceeding with best judgment.", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
