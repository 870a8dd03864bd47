package notification

// ContextNotification reports runtime lifecycle transitions. It is blocking:
// listeners observe the transition before the runtime proceeds.
type ContextNotification struct {
	*Base
}

// BlockingNotification marks ContextNotification as Blocking.
func (ContextNotification) BlockingNotification() {}

// NewContextNotification creates a context lifecycle notification.
// The resource identifier is the runtime's name.
func NewContextNotification(action Action, runtimeName string) *ContextNotification {
	return &ContextNotification{Base: NewBase(ContextType, action, runtimeName, runtimeName)}
}

// SecurityNotification reports authentication and authorization events.
type SecurityNotification struct {
	*Base
	Principal string
}

// NewSecurityNotification creates a security notification for a principal.
func NewSecurityNotification(action Action, principal, resourceID string) *SecurityNotification {
	return &SecurityNotification{
		Base:      NewBase(SecurityType, action, principal, resourceID),
		Principal: principal,
	}
}

// ConnectionNotification reports connectivity changes of a connector.
type ConnectionNotification struct {
	*Base
	Connector string
}

// NewConnectionNotification creates a connection notification. The
// connector name doubles as the resource identifier.
func NewConnectionNotification(action Action, connector string) *ConnectionNotification {
	return &ConnectionNotification{
		Base:      NewBase(ConnectionType, action, connector, connector),
		Connector: connector,
	}
}

// TransactionNotification reports transaction boundaries.
type TransactionNotification struct {
	*Base
	TransactionID string
}

// NewTransactionNotification creates a transaction notification.
func NewTransactionNotification(action Action, txID, resourceID string) *TransactionNotification {
	return &TransactionNotification{
		Base:          NewBase(TransactionType, action, txID, resourceID),
		TransactionID: txID,
	}
}

// ConnectorMessageNotification reports messages passing through a connector.
type ConnectorMessageNotification struct {
	*Base
	Endpoint string
	Message  any
}

// NewConnectorMessageNotification creates a connector message notification.
// The endpoint is used as the resource identifier.
func NewConnectorMessageNotification(action Action, endpoint string, message any) *ConnectorMessageNotification {
	return &ConnectorMessageNotification{
		Base:     NewBase(ConnectorMessageType, action, message, endpoint),
		Endpoint: endpoint,
		Message:  message,
	}
}

// CustomNotification carries application-defined actions in the custom range.
type CustomNotification struct {
	*Base
}

// NewCustomNotification creates a custom notification.
func NewCustomNotification(action Action, source any, resourceID string) *CustomNotification {
	return &CustomNotification{Base: NewBase(CustomType, action, source, resourceID)}
}

// FlowInfo describes the flow an enriched notification was raised in.
type FlowInfo struct {
	Flow      string
	Component string
}

// ExceptionNotification reports an error raised while processing a message.
type ExceptionNotification struct {
	*Base
	FlowInfo
	Err error
}

// NewExceptionNotification creates an exception notification. The flow
// name is used as the resource identifier.
func NewExceptionNotification(err error, info FlowInfo) *ExceptionNotification {
	return &ExceptionNotification{
		Base:     NewBase(ExceptionType, ExceptionAction, err, info.Flow),
		FlowInfo: info,
		Err:      err,
	}
}

// MessageProcessorNotification reports invocation of a processor in a flow.
type MessageProcessorNotification struct {
	*Base
	FlowInfo
	Err error
}

// NewMessageProcessorNotification creates a message processor notification.
func NewMessageProcessorNotification(action Action, info FlowInfo, err error) *MessageProcessorNotification {
	return &MessageProcessorNotification{
		Base:     NewBase(MessageProcessorType, action, info.Component, info.Flow),
		FlowInfo: info,
		Err:      err,
	}
}

// ErrorHandlerNotification reports an error handler taking over a message.
type ErrorHandlerNotification struct {
	*Base
	FlowInfo
}

// NewErrorHandlerNotification creates an error handler notification.
func NewErrorHandlerNotification(action Action, info FlowInfo) *ErrorHandlerNotification {
	return &ErrorHandlerNotification{
		Base:     NewBase(ErrorHandlerType, action, info.Component, info.Flow),
		FlowInfo: info,
	}
}

// PipelineMessageNotification reports a message entering or leaving a flow.
type PipelineMessageNotification struct {
	*Base
	FlowInfo
	Message any
}

// NewPipelineMessageNotification creates a pipeline notification.
func NewPipelineMessageNotification(action Action, info FlowInfo, message any) *PipelineMessageNotification {
	return &PipelineMessageNotification{
		Base:     NewBase(PipelineMessageType, action, message, info.Flow),
		FlowInfo: info,
		Message:  message,
	}
}
