// Package serialization implements the safetensors container format: a
// length-prefixed JSON header describing named tensors, followed by their
// raw bytes.
//
//	Format Structure:
//	  [8 bytes: Header Size N (uint64 LE)]
//	  [N bytes: JSON header]
//	  [Tensor data: raw bytes, no padding]
//
// The header maps each tensor name to its dtype, shape and data_offsets
// (a half-open byte range relative to the first payload byte). The optional
// "__metadata__" key holds a free-form string map.
//
// Writing is deterministic: tensors are laid out in lexicographic name order
// and the header keys follow the same order, so identical content always
// produces identical bytes.
//
// Every failure is an *Error carrying one ErrorKind from a closed set.
//
// Example usage:
//
//	w, err := serialization.NewTensorView(dtype.F32, []uint64{2, 2}, raw)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	buf, err := serialization.Serialize([]serialization.NamedView{{Name: "w", View: w}}, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	st, err := serialization.Deserialize(buf)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	tv, err := st.Tensor("w")
package serialization
