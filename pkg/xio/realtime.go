package xio

// stripRealtime passes every byte of chunk to intercept and returns the
// bytes it did not consume, in order. The result reuses chunk's storage.
func stripRealtime(chunk []byte, intercept func(byte) bool) []byte {
	if intercept == nil {
		return chunk
	}
	kept := chunk[:0]
	for _, c := range chunk {
		if !intercept(c) {
			kept = append(kept, c)
		}
	}
	return kept
}

// relay moves chunks from in to out, holding as many as out cannot take
// yet. A producer sending on in is never held up by a reader that is not
// polling. out is closed once in has closed and every held chunk has been
// delivered, or as soon as stop closes.
func relay(in <-chan []byte, out chan<- []byte, stop <-chan struct{}) {
	defer close(out)
	var held [][]byte
	for in != nil || len(held) > 0 {
		var send chan<- []byte
		var next []byte
		if len(held) > 0 {
			send, next = out, held[0]
		}
		select {
		case chunk, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			held = append(held, chunk)
		case send <- next:
			held[0] = nil
			held = held[1:]
		case <-stop:
			return
		}
	}
}
