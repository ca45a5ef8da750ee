package order

import "github.com/shopspring/decimal"

// ShippingKind tags the shape the shipping data arrived in. Checkout flows
// attach one of three shapes to the payment metadata: a carrier-quoted rate,
// a plain address, or nothing (digital goods, pickup).
type ShippingKind string

const (
	// ShippingUnset is the zero value, so an order that never went through
	// ResolveShipping is still recognized as having no destination.
	ShippingUnset  ShippingKind = ""
	ShippingSimple ShippingKind = "simple"
	ShippingQuoted ShippingKind = "quoted"
)

// Address is the canonical destination shape every shipping variant resolves to.
type Address struct {
	Name       string
	Street     string
	City       string
	State      string
	PostalCode string
	Country    string
	Phone      string
}

// ShippingInfo is the canonical internal representation resolved once at
// materialization time from whichever shape the gateway metadata carried.
type ShippingInfo struct {
	Kind        ShippingKind
	Address     Address
	CarrierCode string          // quoted only
	ServiceName string          // quoted only
	Fee         decimal.Decimal
}

// ResolveShipping collapses the optional raw shapes into a single canonical
// ShippingInfo. A quoted shape wins over a simple one when both are present.
func ResolveShipping(quoted *QuotedShipping, simple *Address) ShippingInfo {
	switch {
	case quoted != nil:
		return ShippingInfo{
			Kind:        ShippingQuoted,
			Address:     quoted.Address,
			CarrierCode: quoted.CarrierCode,
			ServiceName: quoted.ServiceName,
			Fee:         quoted.Fee,
		}
	case simple != nil:
		return ShippingInfo{Kind: ShippingSimple, Address: *simple}
	default:
		return ShippingInfo{Kind: ShippingUnset}
	}
}

// QuotedShipping is the carrier-quoted shape produced by a rate lookup at
// checkout time.
type QuotedShipping struct {
	Address     Address
	CarrierCode string
	ServiceName string
	Fee         decimal.Decimal
}
