// Package mailbox is a single-slot request/response channel between two processes,
// backed by a named shared memory region.
//
// The owner creates the region, the peer attaches to it by name. The region holds a
// small header followed by the payload slot:
//
//	magic | lock | request-ready | response-ready | kind | length | code | seq | payload...
//
// Two counting semaphores living in the header give the turn discipline: the owner
// posts request-ready after writing a Request or Terminate, the peer posts
// response-ready after writing a response. Receive suspends the caller on a futex
// until its semaphore is posted; nothing spins. The slot lock makes every read and
// write of the slot exclusive, so a receiver never sees a half written frame.
//
// Example usage:
//
//	mb, err := mailbox.Create(ctx, "shmsum", mailbox.WithCapacity(4096))
//	if err != nil {
//		return err
//	}
//	defer mb.Destroy()
//	if err := mb.Send(ctx, mailbox.Request, []byte("1.5 2.5 3")); err != nil {
//		return err
//	}
//	resp, err := mb.Receive(ctx)
//
// Only the owner removes the name. Regions created by a process that dies without
// Destroy stay in /dev/shm until the next Create of the same name replaces them.
package mailbox
