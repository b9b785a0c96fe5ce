package registry

import "context"

// Store is the durable attendee ledger. Implementations live in
// internal/store (Postgres, SQLite, in-memory) and are selected at
// composition time; services never know which backend they talk to.
//
// Insert is the authoritative uniqueness gate: it must check email and
// token atomically with the write and report ErrDuplicateEmail or
// ErrDuplicateToken, never a pre-check followed by a blind insert.
//
// CheckIn must be a single atomic conditional update ("set checked_in
// where token = X and not checked_in"). Under concurrent calls for one
// token exactly one caller sees transitioned == true; the rest get the
// record with CheckedIn already set.
type Store interface {
	Insert(ctx context.Context, att Attendee) (Attendee, error)
	FindByEmail(ctx context.Context, email string) (*Attendee, error)
	FindByToken(ctx context.Context, token string) (*Attendee, error)
	CheckIn(ctx context.Context, token string) (att Attendee, transitioned bool, err error)
	ListAll(ctx context.Context) ([]Attendee, error)
	Stats(ctx context.Context) (Stats, error)
	RecordScan(ctx context.Context, ev ScanEvent) error
	ListScans(ctx context.Context, limit int) ([]ScanEvent, error)
	ResetAll(ctx context.Context) error
	Close() error
}
