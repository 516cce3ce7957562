package domain

var Tables = []interface{}{
	// System
	&Setting{},
	&Operator{},
	&OperatorLog{},
	// Catalog
	&Product{},
}
