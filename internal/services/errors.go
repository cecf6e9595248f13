package services

import "errors"

// Sentinel errors the transport layer maps onto API responses.
var (
	// ErrNotLoaded means no dataset has been loaded yet.
	ErrNotLoaded = errors.New("datasets not loaded")

	// ErrUnknownLevel means the requested administrative level is not
	// district or sector.
	ErrUnknownLevel = errors.New("unknown administrative level")

	// ErrUnknownMetric means the metric ID is not in the level's registry.
	ErrUnknownMetric = errors.New("unknown metric")

	// ErrUnitNotFound means a selected unit key does not exist.
	ErrUnitNotFound = errors.New("administrative unit not found")

	// ErrNoData means the selection matches no observations.
	ErrNoData = errors.New("no data for selection")

	// ErrInvalidSelection means the selection failed validation.
	ErrInvalidSelection = errors.New("invalid selection")

	// ErrUnsupportedFormat means the export format is not csv or xlsx.
	ErrUnsupportedFormat = errors.New("unsupported export format")
)
