package hdf5

import (
	"fmt"

	"github.com/robert-malhotra/h5zarr/internal/binary"
	"github.com/robert-malhotra/h5zarr/internal/dtype"
	"github.com/robert-malhotra/h5zarr/internal/message"
)

// Attribute represents an HDF5 attribute attached to a dataset or group.
type Attribute struct {
	msg    *message.Attribute
	reader *binary.Reader // For resolving global heap references
}

// Name returns the attribute name.
func (a *Attribute) Name() string {
	return a.msg.Name
}

// Shape returns the dimensions of the attribute value.
func (a *Attribute) Shape() []uint64 {
	if a.msg.Dataspace == nil || a.msg.Dataspace.IsScalar() {
		return nil
	}
	return a.msg.Dataspace.Dimensions
}

// NumElements returns the total number of elements.
func (a *Attribute) NumElements() uint64 {
	if a.msg.Dataspace == nil {
		return 1
	}
	return a.msg.Dataspace.NumElements()
}

// IsScalar returns true if the attribute is a scalar value.
func (a *Attribute) IsScalar() bool {
	if a.msg.Dataspace == nil {
		return true
	}
	return a.msg.Dataspace.IsScalar()
}

// Datatype returns the attribute's datatype message.
func (a *Attribute) Datatype() *message.Datatype {
	return a.msg.Datatype
}

// Data returns the raw encoded attribute value.
func (a *Attribute) Data() []byte {
	return a.msg.Data
}

// ObjectRef is an object reference: the object header address of the
// referenced group or dataset.
type ObjectRef uint64

// ReadReferences reads an object reference attribute. Region references
// are not supported.
func (a *Attribute) ReadReferences() ([]ObjectRef, error) {
	dt := a.msg.Datatype
	if dt == nil || dt.Class != message.ClassReference {
		return nil, fmt.Errorf("attribute %q is not a reference", a.msg.Name)
	}
	if dt.ClassBits&0x0f != 0 {
		return nil, fmt.Errorf("attribute %q: region references: %w", a.msg.Name, ErrUnsupported)
	}
	size := int(dt.Size)
	if size == 0 || size > 8 {
		return nil, fmt.Errorf("attribute %q: invalid reference size %d", a.msg.Name, size)
	}
	n := int(a.NumElements())
	if len(a.msg.Data) < n*size {
		return nil, fmt.Errorf("attribute %q: %d bytes for %d references", a.msg.Name, len(a.msg.Data), n)
	}
	refs := make([]ObjectRef, n)
	for i := range refs {
		var v uint64
		for j := 0; j < size; j++ {
			v |= uint64(a.msg.Data[i*size+j]) << (8 * j)
		}
		refs[i] = ObjectRef(v)
	}
	return refs, nil
}

// ReadString reads a fixed or variable-length string attribute.
func (a *Attribute) ReadString() ([]string, error) {
	if a.msg.Datatype == nil {
		return nil, fmt.Errorf("attribute %q has no datatype", a.msg.Name)
	}
	return dtype.Strings(a.msg.Datatype, a.msg.Data, a.NumElements(), a.reader)
}
