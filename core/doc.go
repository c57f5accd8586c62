// Package core holds the order domain, the storage and broker contracts and
// the shared configuration, error and logging helpers. Adapters depend on
// this package; core does not depend on any transport or storage adapter.
package core
