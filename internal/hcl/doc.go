// Package hcl provides the concrete HCL implementation of the
// manifest.Loader interface. It is responsible for parsing package manifests
// (package.hcl), decoding them with gohcl and translating the HCL schema
// into the format-agnostic manifest model.
//
// A manifest looks like:
//
//	package "foo" {
//	  version = "0.1.0"
//
//	  target "lib" "foo" {
//	    path = "src/lib.rs"
//	  }
//
//	  dependency "bar" {
//	    path     = "../bar"
//	    features = ["std"]
//	    when     = target_os != "windows"
//	  }
//
//	  feature "default" {
//	    enables = ["std"]
//	  }
//	}
//
// The `when` expression is not evaluated here; it is carried into the model
// and evaluated by the resolver once the target platform is known.
package hcl
