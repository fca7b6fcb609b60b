package types

import "errors"

// Sentinel errors for busprobe operations.
var (
	// ErrNotFound indicates the await timeout elapsed with no full match.
	ErrNotFound = errors.New("no message matched the filters")

	// ErrAmbiguousMatch indicates more than one buffered message fully matched.
	ErrAmbiguousMatch = errors.New("multiple messages matched the filters")

	// ErrUnexpectedMatch indicates a full match was seen while awaiting absence.
	ErrUnexpectedMatch = errors.New("expected no match but found a matching message")

	// ErrUnknownFunction indicates a DSL call names an unregistered function.
	ErrUnknownFunction = errors.New("unknown DSL function")

	// ErrArgumentCount indicates a DSL call has the wrong number of arguments.
	ErrArgumentCount = errors.New("wrong DSL argument count")

	// ErrMalformedExpression indicates unbalanced or truncated DSL call syntax.
	ErrMalformedExpression = errors.New("malformed DSL expression")

	// ErrInvalidArgument indicates a DSL argument could not be interpreted
	// (non-numeric count, bad regex, bad date pattern).
	ErrInvalidArgument = errors.New("invalid DSL argument")

	// ErrFunctionExists indicates a duplicate registration in a DSL registry.
	ErrFunctionExists = errors.New("DSL function already registered")

	// ErrMalformedPath indicates an unparseable array index in a field path.
	ErrMalformedPath = errors.New("malformed field path")

	// ErrPathTooDeep indicates a field path exceeds MaxPathDepth.
	ErrPathTooDeep = errors.New("field path exceeds maximum depth")

	// ErrContextKeyNotFound indicates a scenario context key was never set.
	ErrContextKeyNotFound = errors.New("no value in scenario context")

	// ErrContextTypeMismatch indicates a scenario context value has another type.
	ErrContextTypeMismatch = errors.New("scenario context type mismatch")

	// ErrPayloadValueNotFound indicates a payload value key is absent.
	ErrPayloadValueNotFound = errors.New("no payload value found")

	// ErrBufferClosed indicates an append after the buffer was closed.
	ErrBufferClosed = errors.New("message buffer closed")

	// ErrDocumentTooLarge indicates an ingested document exceeds MaxDocumentSize.
	ErrDocumentTooLarge = errors.New("document exceeds maximum size")

	// ErrTrailingData indicates extra JSON values after the first document.
	ErrTrailingData = errors.New("unexpected data after JSON document")
)
