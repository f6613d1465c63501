package sched

import "time"

// Park abstracts over one hart's actual blocking primitive (a WFI loop,
// a condition variable, whatever the host test harness substitutes),
// matching kasync's park::Park trait bound on Parker<P>.
type Park interface {
	// Park blocks the calling hart until Unpark is called at least once
	// since the last Park/ParkUntil returned (spec.md §5 "park_until(deadline,
	// clock) returns when unparked or deadline passes").
	Park()
	// ParkUntil blocks until Unpark is called or deadline passes,
	// reporting which happened.
	ParkUntil(deadline time.Time) (unparked bool)
	// Unpark wakes one pending or future Park/ParkUntil call.
	Unpark()
}

// identity is a unique, comparable marker shared across every clone of a
// Parker wrapping the same underlying P, standing in for Arc's pointer
// identity (kasync's Parker<P>(Arc<P>) — cloning the Arc shares one
// allocation, so two clones' raw pointers compare equal). Backed by a
// non-zero-sized allocation: Go does not guarantee distinct addresses
// for zero-sized values (new(struct{}) may alias across calls), so a
// plain *struct{} would not be safe here.
type identity = *int32

// Parker wraps a concrete Park implementation P, matching
// kasync/src/park/parker.rs's Parker<P>(Arc<P>). id gives every value
// copied from the same NewParker call a shared, comparable identity, the
// same role Arc's pointer plays for Waker::will_wake.
type Parker[P Park] struct {
	p  P
	id identity
}

// NewParker wraps p.
func NewParker[P Park](p P) Parker[P] { return Parker[P]{p: p, id: new(int32)} }

// Park blocks until unparked.
func (pk Parker[P]) Park() { pk.p.Park() }

// ParkUntil blocks until unparked or deadline passes.
func (pk Parker[P]) ParkUntil(deadline time.Time) bool { return pk.p.ParkUntil(deadline) }

// Unpark wakes whatever is parked (or will next park) on this Parker.
func (pk Parker[P]) Unpark() { pk.p.Unpark() }

// UnparkToken is a cloneable, concurrency-safe handle that can only
// Unpark, not Park — the capability a waker or a remote hart actually
// needs (kasync's UnparkToken<P>(Parker<P>), "assert_impl_all!(...:
// Send, Sync)"). Go has no separate Send/Sync marker traits: any value
// without unsynchronized mutable state is automatically safe to share,
// and UnparkToken holds nothing but the Parker it wraps.
type UnparkToken[P Park] struct {
	parker Parker[P]
}

// IntoUnparkToken converts pk into a cloneable UnparkToken.
func (pk Parker[P]) IntoUnparkToken() UnparkToken[P] {
	return UnparkToken[P]{parker: pk}
}

// Unpark wakes whatever is parked on the underlying Parker.
func (t UnparkToken[P]) Unpark() { t.parker.Unpark() }

// Waker is a minimal wake capability any suspended task can be resumed
// through, standing in for core::task::Waker. WillWake answers the same
// question Rust's Waker::will_wake does: "would calling Wake on this
// Waker resume the same task as other".
type Waker interface {
	Wake()
	WillWake(other Waker) bool
}

type parkerWaker[P Park] struct {
	token UnparkToken[P]
}

func (w *parkerWaker[P]) Wake() { w.token.Unpark() }

// WillWake compares the originating Parker's identity rather than this
// wrapper's own address, mirroring why into_raw_waker is
// #[inline(never)] in the original: Rust needs that to stop the
// compiler from duplicating the vtable-construction code in a way that
// breaks raw-pointer equality between two wakers cloned from the same
// Parker. Go has no equivalent inlining hazard — two IntoWaker calls on
// the same Parker each allocate a distinct *parkerWaker, so identity is
// compared through the shared id field, not the wrapper's own address.
func (w *parkerWaker[P]) WillWake(other Waker) bool {
	o, ok := other.(*parkerWaker[P])
	if !ok {
		return false
	}
	return w.token.parker.id == o.token.parker.id
}

// IntoWaker converts pk into a Waker.
func (pk Parker[P]) IntoWaker() Waker {
	return &parkerWaker[P]{token: pk.IntoUnparkToken()}
}
