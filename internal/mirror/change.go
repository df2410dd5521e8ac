package mirror

import "fmt"

// Kind is the type of change a ChangeRecord represents.
type Kind int

const (
	KindCreate Kind = iota + 1
	KindUpdate
	KindMove
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindCreate:
		return "CREATE"
	case KindUpdate:
		return "UPDATE"
	case KindMove:
		return "MOVE"
	case KindDelete:
		return "DELETE"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Action returns the name reported to audit and notification collaborators.
// Moves are reported as PUT since their remote effect is a plain upload.
func (k Kind) Action() string {
	if k == KindMove {
		return "PUT"
	}
	return k.String()
}

// ChangeRecord is one detected filesystem change awaiting its remote effect.
//
// DestPath is set only for KindMove. A record stays in the in-flight set from
// classification until the pipeline has finished with it, successfully or not.
type ChangeRecord struct {
	SourcePath string
	DestPath   string
	Kind       Kind
	WatchRoot  string
	Completed  bool
}

// RecordKey is the identity used to deduplicate in-flight records.
type RecordKey struct {
	SourcePath string
	DestPath   string
	Kind       Kind
	WatchRoot  string
}

// Key returns the deduplication identity of the record.
func (r *ChangeRecord) Key() RecordKey {
	return RecordKey{
		SourcePath: r.SourcePath,
		DestPath:   r.DestPath,
		Kind:       r.Kind,
		WatchRoot:  r.WatchRoot,
	}
}

// TargetPath returns the local path whose remote key the record affects.
func (r *ChangeRecord) TargetPath() string {
	if r.DestPath != "" {
		return r.DestPath
	}
	return r.SourcePath
}

// Validate checks the kind/destination invariants.
func (r *ChangeRecord) Validate() error {
	switch r.Kind {
	case KindMove:
		if r.DestPath == "" {
			return fmt.Errorf("move record for %s has no destination", r.SourcePath)
		}
	case KindDelete:
		if r.DestPath != "" {
			return fmt.Errorf("delete record for %s has a destination", r.SourcePath)
		}
	case KindCreate, KindUpdate:
	default:
		return fmt.Errorf("record for %s has unknown kind %v", r.SourcePath, r.Kind)
	}
	return nil
}

func (r *ChangeRecord) String() string {
	if r.DestPath != "" {
		return fmt.Sprintf("%s %s -> %s", r.Kind, r.SourcePath, r.DestPath)
	}
	return fmt.Sprintf("%s %s", r.Kind, r.SourcePath)
}

// EventOp is the notification type reported by an EventSource.
type EventOp int

const (
	OpCreated EventOp = iota + 1
	OpModified
	OpMoved
	OpDeleted
	OpOpened
	OpClosed
	OpAttrib
)

func (o EventOp) String() string {
	switch o {
	case OpCreated:
		return "created"
	case OpModified:
		return "modified"
	case OpMoved:
		return "moved"
	case OpDeleted:
		return "deleted"
	case OpOpened:
		return "opened"
	case OpClosed:
		return "closed"
	case OpAttrib:
		return "attrib"
	default:
		return fmt.Sprintf("EventOp(%d)", int(o))
	}
}

// RawEvent is an unclassified filesystem notification.
type RawEvent struct {
	Op       EventOp
	Path     string
	DestPath string // only for OpMoved
	IsDir    bool
}
