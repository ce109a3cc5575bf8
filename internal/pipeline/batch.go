package pipeline

import "context"

// Failure describes one message a batch could not process.
type Failure struct {
	Index     int
	ContactID string
	MessageID string
	Class     FailureClass
	Err       error
}

// BatchResult holds the replies that succeeded and the failures that were skipped.
type BatchResult struct {
	Replies  []*Reply
	Failures []Failure
}

// ProcessBatch runs each message independently and in order. A failing message
// is recorded and skipped; it never stops the rest of the batch.
func (p *Pipeline) ProcessBatch(ctx context.Context, msgs []InboundMessage) BatchResult {
	res := BatchResult{Replies: make([]*Reply, 0, len(msgs))}
	for i, msg := range msgs {
		out, err := p.Process(ctx, msg)
		if err != nil {
			res.Failures = append(res.Failures, Failure{
				Index:     i,
				ContactID: msg.SenderID,
				MessageID: msg.MessageID,
				Class:     Classify(err),
				Err:       err,
			})
			continue
		}
		res.Replies = append(res.Replies, out)
	}
	return res
}
