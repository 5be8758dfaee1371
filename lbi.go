package taskgraph

// LogicalBlobID identifies one logical tensor of the whole computation, the output blob BlobName of
// the operator OpName.
type LogicalBlobID struct {
	OpName   string
	BlobName string
}

// String implements fmt.Stringer, in the format "op/blob".
func (lbi LogicalBlobID) String() string {
	return lbi.OpName + "/" + lbi.BlobName
}
