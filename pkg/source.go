package beagle

// sourceRequest is sent by L, P, T, or M on the master-in channel to ask the
// driver for a snippet of source text around pos. The driver replies on
// Reply with the lines named by pos.LineRegion; Reply has a one-slot buffer
// and is owned exclusively by this request, so the cyclic stage -> driver -> stage
// handshake never needs a shared rendezvous object, only message passing.
type sourceRequest struct {
	Pos   BiPos
	Reply chan string
}

// sourceServicer answers source-snippet requests. lineServicer is the only
// implementation, used by the driver's servicer goroutine; stages never call
// it directly, they go through requestSnippet on the master-in channel.
type sourceServicer interface {
	RequestSnippet(pos BiPos) string
}

// requestSnippet performs the blocking round-trip: send on master-in, block
// on the per-request reply channel. It's the stage-side half of
// the stage-driver-stage handshake.
func requestSnippet(masterIn chan<- sourceRequest, pos BiPos) string {
	reply := make(chan string, 1)
	masterIn <- sourceRequest{Pos: pos, Reply: reply}
	return <-reply
}
