// Package businessflow contains the search engine use cases: parameter parsing, query
// composition, pagination and result hydration
package businessflow

import (
	"slices"

	"github.com/lib/pq"
)

const RequestIDKey = "X-Request-ID"

// ClientMetadata holds request information used for logging
type ClientMetadata struct {
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
	RequestID string `json:"request_id,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance with basic information
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

// Principal is the requester every query is built for. Admins see every group.
type Principal struct {
	UserID             uint
	AccessibleGroupIDs []int64
	IsAdmin            bool
}

// CanAccessGroup reports whether the principal may read rows shared with groupID
func (p Principal) CanAccessGroup(groupID int64) bool {
	return p.IsAdmin || slices.Contains(p.AccessibleGroupIDs, groupID)
}

// ScopeGroupIDs is the group restriction for hydration lookups; nil means unrestricted
func (p Principal) ScopeGroupIDs() []int64 {
	if p.IsAdmin {
		return nil
	}
	if p.AccessibleGroupIDs == nil {
		return []int64{}
	}
	return p.AccessibleGroupIDs
}

func (p Principal) groupArray() pq.Int64Array {
	return pq.Int64Array(p.AccessibleGroupIDs)
}
