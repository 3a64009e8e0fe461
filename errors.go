package kvlite

import "github.com/kvlite-go/kvlite/internal/kverrors"

// Kind classifies the failure modes the engine can produce. It is a
// re-export of internal/kverrors.Kind so that both the facade and the
// internal storage layers share one taxonomy without an import cycle.
type Kind = kverrors.Kind

const (
	KindInvalidArgument       = kverrors.InvalidArgument
	KindNotSerializable       = kverrors.NotSerializable
	KindDeserializationFailed = kverrors.DeserializationFailed
	KindTooManyParents        = kverrors.TooManyParents
	KindParentMissing         = kverrors.ParentMissing
	KindNotSupported          = kverrors.NotSupported
	KindTransient             = kverrors.Transient
	KindSchemaError           = kverrors.SchemaError
	KindDisposed              = kverrors.Disposed
)

// Error is the concrete error type returned by every engine operation that
// can fail in a way the caller should be able to branch on.
type Error = kverrors.Error

func newErr(op string, kind Kind, err error) *Error {
	return kverrors.New(op, kind, err)
}

// Sentinel errors for use with errors.Is. Op is left blank; only Kind is
// compared by (*Error).Is.
var (
	ErrInvalidArgument       = newErr("", KindInvalidArgument, nil)
	ErrNotSerializable       = newErr("", KindNotSerializable, nil)
	ErrDeserializationFailed = newErr("", KindDeserializationFailed, nil)
	ErrTooManyParents        = newErr("", KindTooManyParents, nil)
	ErrParentMissing         = newErr("", KindParentMissing, nil)
	ErrNotSupported          = newErr("", KindNotSupported, nil)
	ErrTransient             = newErr("", KindTransient, nil)
	ErrSchemaError           = newErr("", KindSchemaError, nil)
	ErrDisposed              = newErr("", KindDisposed, nil)
)
