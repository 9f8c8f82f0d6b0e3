// Package memory sets the Go runtime's soft memory limit for containerized
// deployments.
//
// Kubernetes can expose a container's memory limit through the downward API:
//
//	env:
//	  - name: MEMORY_LIMIT
//	    valueFrom:
//	      resourceFieldRef:
//	        resource: limits.memory
//
// Configure turns that into GOMEMLIMIT, scaled by MEMORY_RATIO. A GOMEMLIMIT
// already in the environment is respected as is.
package memory
