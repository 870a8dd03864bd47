package notification

import "fmt"

// Action range starts for the built-in families.
const (
	ContextRangeStart          Action = 100
	SecurityRangeStart         Action = 400
	ConnectionRangeStart       Action = 700
	ExceptionRangeStart        Action = 1000
	TransactionRangeStart      Action = 1100
	MessageProcessorRangeStart Action = 1600
	ErrorHandlerRangeStart     Action = 1700
	PipelineMessageRangeStart  Action = 1800
	ConnectorMessageRangeStart Action = 2100
	CustomRangeStart           Action = 100000

	familySpan = 100
	customSpan = 1_000_000
)

// Built-in action codes.
const (
	ContextInitialising Action = ContextRangeStart + iota + 1
	ContextInitialised
	ContextStarting
	ContextStarted
	ContextStopping
	ContextStopped
	ContextDisposing
	ContextDisposed
)

const (
	SecurityAuthenticationFailed Action = SecurityRangeStart + iota + 1
)

const (
	ConnectionConnected Action = ConnectionRangeStart + iota + 1
	ConnectionConnectFailed
	ConnectionDisconnected
)

const (
	ExceptionAction Action = ExceptionRangeStart + iota + 1
)

const (
	TransactionBegan Action = TransactionRangeStart + iota + 1
	TransactionCommitted
	TransactionRolledBack
)

const (
	MessageProcessorPreInvoke Action = MessageProcessorRangeStart + iota + 1
	MessageProcessorPostInvoke
)

const (
	ErrorHandlerProcessStart Action = ErrorHandlerRangeStart + iota + 1
	ErrorHandlerProcessEnd
)

const (
	PipelineProcessStart Action = PipelineMessageRangeStart + iota + 1
	PipelineProcessEnd
	PipelineProcessComplete
)

const (
	ConnectorMessageReceived Action = ConnectorMessageRangeStart + iota + 1
	ConnectorMessageResponse
	ConnectorMessageRequestBegin
	ConnectorMessageRequestEnd
)

// Built-in notification types.
var (
	ServerType           = NewType("server")
	ContextType          = NewType("context", WithParents(ServerType), WithActionRange(ContextRangeStart, familySpan))
	SecurityType         = NewType("security", WithParents(ServerType), WithActionRange(SecurityRangeStart, familySpan))
	ConnectionType       = NewType("connection", WithParents(ServerType), WithActionRange(ConnectionRangeStart, familySpan))
	TransactionType      = NewType("transaction", WithParents(ServerType), WithActionRange(TransactionRangeStart, familySpan))
	ConnectorMessageType = NewType("connector-message", WithParents(ServerType), WithActionRange(ConnectorMessageRangeStart, familySpan))
	CustomType           = NewType("custom", WithParents(ServerType), WithActionRange(CustomRangeStart, customSpan))

	EnrichedType         = NewType("enriched", WithParents(ServerType))
	ExceptionType        = NewType("exception", WithParents(EnrichedType), WithActionRange(ExceptionRangeStart, familySpan))
	MessageProcessorType = NewType("message-processor", WithParents(EnrichedType), WithActionRange(MessageProcessorRangeStart, familySpan))
	ErrorHandlerType     = NewType("error-handler", WithParents(EnrichedType), WithActionRange(ErrorHandlerRangeStart, familySpan))
	PipelineMessageType  = NewType("pipeline-message", WithParents(EnrichedType), WithActionRange(PipelineMessageRangeStart, familySpan))
)

// Built-in listener interfaces.
var (
	ServerListener           = NewInterface("server")
	ContextListener          = NewInterface("context", ServerListener)
	SecurityListener         = NewInterface("security", ServerListener)
	ConnectionListener       = NewInterface("connection", ServerListener)
	TransactionListener      = NewInterface("transaction", ServerListener)
	ConnectorMessageListener = NewInterface("connector-message", ServerListener)
	CustomListener           = NewInterface("custom", ServerListener)
	ExceptionListener        = NewInterface("exception", ServerListener)
	MessageProcessorListener = NewInterface("message-processor", ServerListener)
	ErrorHandlerListener     = NewInterface("error-handler", ServerListener)
	PipelineMessageListener  = NewInterface("pipeline-message", ServerListener)
)

type builtinAction struct {
	typ  *Type
	code Action
	name string
}

var builtinActions = []builtinAction{
	{ContextType, ContextInitialising, "context initialising"},
	{ContextType, ContextInitialised, "context initialised"},
	{ContextType, ContextStarting, "context starting"},
	{ContextType, ContextStarted, "context started"},
	{ContextType, ContextStopping, "context stopping"},
	{ContextType, ContextStopped, "context stopped"},
	{ContextType, ContextDisposing, "context disposing"},
	{ContextType, ContextDisposed, "context disposed"},
	{SecurityType, SecurityAuthenticationFailed, "security authentication failed"},
	{ConnectionType, ConnectionConnected, "connection connected"},
	{ConnectionType, ConnectionConnectFailed, "connection connect failed"},
	{ConnectionType, ConnectionDisconnected, "connection disconnected"},
	{ExceptionType, ExceptionAction, "exception"},
	{TransactionType, TransactionBegan, "transaction began"},
	{TransactionType, TransactionCommitted, "transaction committed"},
	{TransactionType, TransactionRolledBack, "transaction rolled back"},
	{MessageProcessorType, MessageProcessorPreInvoke, "message processor pre invoke"},
	{MessageProcessorType, MessageProcessorPostInvoke, "message processor post invoke"},
	{ErrorHandlerType, ErrorHandlerProcessStart, "error handler process start"},
	{ErrorHandlerType, ErrorHandlerProcessEnd, "error handler process end"},
	{PipelineMessageType, PipelineProcessStart, "pipeline process start"},
	{PipelineMessageType, PipelineProcessEnd, "pipeline process end"},
	{PipelineMessageType, PipelineProcessComplete, "pipeline process complete"},
	{ConnectorMessageType, ConnectorMessageReceived, "connector message received"},
	{ConnectorMessageType, ConnectorMessageResponse, "connector message response"},
	{ConnectorMessageType, ConnectorMessageRequestBegin, "connector message request begin"},
	{ConnectorMessageType, ConnectorMessageRequestEnd, "connector message request end"},
}

// RegisterBuiltins registers the built-in types, interfaces, action names
// and default bindings. It is meant to be called once per registry at
// process start; calling it again is harmless.
func RegisterBuiltins(r *Registry) error {
	types := []*Type{
		ServerType, ContextType, SecurityType, ConnectionType, TransactionType,
		ConnectorMessageType, CustomType, EnrichedType, ExceptionType,
		MessageProcessorType, ErrorHandlerType, PipelineMessageType,
	}
	for _, t := range types {
		if err := r.RegisterType(t); err != nil {
			return fmt.Errorf("registering builtin types: %w", err)
		}
	}

	bindings := []Binding{
		{ContextListener, ContextType},
		{SecurityListener, SecurityType},
		{ConnectionListener, ConnectionType},
		{TransactionListener, TransactionType},
		{ConnectorMessageListener, ConnectorMessageType},
		{CustomListener, CustomType},
		{ExceptionListener, ExceptionType},
		{MessageProcessorListener, MessageProcessorType},
		{ErrorHandlerListener, ErrorHandlerType},
		{PipelineMessageListener, PipelineMessageType},
	}
	if err := r.RegisterInterface(ServerListener); err != nil {
		return fmt.Errorf("registering builtin interfaces: %w", err)
	}
	for _, b := range bindings {
		if err := r.RegisterInterface(b.Interface); err != nil {
			return fmt.Errorf("registering builtin interfaces: %w", err)
		}
		if err := r.Bind(b.Interface, b.Type); err != nil {
			return fmt.Errorf("binding %s to %s: %w", b.Interface, b.Type, err)
		}
	}

	for _, a := range builtinActions {
		if err := r.RegisterAction(a.typ, a.code, a.name); err != nil {
			return fmt.Errorf("registering builtin actions: %w", err)
		}
	}
	return nil
}
