package registry

// Service is a component with a managed lifecycle. Start must not block;
// Stop releases everything Start acquired.
type Service interface {
	Start() error
	Stop() error
}
