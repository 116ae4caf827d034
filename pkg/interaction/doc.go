// Package interaction implements the PTP transaction model on top of the
// bulk container transport.
//
// Every operation is one transaction:
//
//   - Command: the host sends the operation code and up to five parameters
//   - Data (optional): a dataset or object travels in one direction
//   - Response: the device returns a response code and parameters
//
// # Client Usage
//
// The Client issues transactions against an opened device:
//
//	client := interaction.NewClient(dev)
//	if err := client.OpenSession(ctx); err != nil {
//	    return err
//	}
//	info, err := client.GetDeviceInfo(ctx)
//
// Object data phases stream through io.Reader / io.Writer with a per-chunk
// hook. A hook error or a cancelled context aborts the transaction and
// sends a class Cancel request so the device returns to idle.
//
// The Client is not safe for concurrent use. Callers serialize.
//
// # Server Usage
//
// The Server is the device side: it reassembles bulk OUT transfers into
// commands and data phases, hands them to a Handler, and queues the
// resulting containers for bulk IN:
//
//	server := interaction.NewServer(store, 512)
//	_ = server.Receive(bulkOut)
//	n, ok := server.Transmit(buf)
package interaction
