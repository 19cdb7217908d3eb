package peer

// CandidateQueue holds reachability candidates that arrived before the remote
// session description. It is owned by a single NegotiationState goroutine and
// is not safe for concurrent use.
type CandidateQueue struct {
	pending []Candidate
}

// Enqueue appends c to the buffer.
func (q *CandidateQueue) Enqueue(c Candidate) {
	q.pending = append(q.pending, c)
}

// DrainIfReady returns every buffered candidate in receipt order and empties
// the queue, but only once the remote description is known. Before that it
// returns nil and keeps the buffer intact.
func (q *CandidateQueue) DrainIfReady(hasRemoteDescription bool) []Candidate {
	if !hasRemoteDescription || len(q.pending) == 0 {
		return nil
	}
	drained := q.pending
	q.pending = nil
	return drained
}

// Len returns the number of buffered candidates.
func (q *CandidateQueue) Len() int {
	return len(q.pending)
}
