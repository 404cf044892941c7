package common

//go:generate go run github.com/dmarkham/enumer -json -sql -type ResourceState -trimprefix State

// ResourceState is the outcome of a harvest cycle for one harvestable resource
type ResourceState int

const (
	StateADDED ResourceState = iota
	StateUPDATED
	StateUNCHANGED
	StateREMOVED
)

// Active returns true if the resource is still advertised by the remote service
func (s ResourceState) Active() bool {
	return s != StateREMOVED
}
