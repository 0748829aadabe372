// Package runtime holds the service lifecycle primitives every long-running
// part of the orchestrator plugs into.
package runtime

import (
	"fmt"
	"reflect"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "registry")

// Service is a long-running component managed by a ServiceRegistry.
type Service interface {
	// Start spawns any goroutines required by the service.
	Start()
	// Stop terminates all goroutines belonging to the service,
	// blocking until they are all terminated.
	Stop() error
	// Status returns an error when the service is unhealthy.
	Status() error
}

// ServiceRegistry starts services in registration order, stops them in
// reverse, and exposes their health for the monitoring endpoints. One
// instance of each concrete type may be registered.
type ServiceRegistry struct {
	services     map[reflect.Type]Service
	serviceTypes []reflect.Type // registration order
}

// NewServiceRegistry returns an empty registry.
func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{
		services: make(map[reflect.Type]Service),
	}
}

// StartAll kicks off every registered service in registration order.
func (s *ServiceRegistry) StartAll() {
	log.WithField("numServices", len(s.serviceTypes)).Debug("Starting services")
	for _, kind := range s.serviceTypes {
		log.WithField("type", kind.String()).Debug("Starting service")
		go s.services[kind].Start()
	}
}

// StopAll ends every service in reverse order of registration. A service
// that fails to stop is logged and the shutdown continues.
func (s *ServiceRegistry) StopAll() {
	for i := len(s.serviceTypes) - 1; i >= 0; i-- {
		kind := s.serviceTypes[i]
		if err := s.services[kind].Stop(); err != nil {
			log.WithError(err).Errorf("Could not stop the following service: %v", kind)
		}
	}
}

// Statuses returns the Status() result of every registered service, keyed
// by service type.
func (s *ServiceRegistry) Statuses() map[reflect.Type]error {
	m := make(map[reflect.Type]error, len(s.serviceTypes))
	for _, kind := range s.serviceTypes {
		m[kind] = s.services[kind].Status()
	}
	return m
}

// RegisterService adds service to the registry. Registering two services of
// the same concrete type is an error.
func (s *ServiceRegistry) RegisterService(service Service) error {
	kind := reflect.TypeOf(service)
	if _, exists := s.services[kind]; exists {
		return fmt.Errorf("service already exists: %v", kind)
	}
	s.services[kind] = service
	s.serviceTypes = append(s.serviceTypes, kind)
	return nil
}

// FetchService sets the value behind the given pointer to the registered
// service of that type, so dependents share the original instance.
func (s *ServiceRegistry) FetchService(service interface{}) error {
	if reflect.TypeOf(service).Kind() != reflect.Ptr {
		return fmt.Errorf("input must be of pointer type, received value type instead: %T", service)
	}
	element := reflect.ValueOf(service).Elem()
	if running, ok := s.services[element.Type()]; ok {
		element.Set(reflect.ValueOf(running))
		return nil
	}
	return fmt.Errorf("unknown service: %T", service)
}
