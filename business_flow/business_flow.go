package businessflow

import (
	"github.com/coracaovalente/instituto-integration/app/dto"
	"github.com/coracaovalente/instituto-integration/models"
	"github.com/coracaovalente/instituto-integration/utils"
)

// ClientMetadata holds client information used for audit log lines
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

// ToDeliveryLogItem converts a delivery log to its masked admin view
func ToDeliveryLogItem(l *models.DeliveryLog) dto.DeliveryLogItem {
	item := dto.DeliveryLogItem{
		ID:           l.ID,
		UserID:       l.UserID,
		Status:       string(l.Status),
		AttemptCount: l.AttemptCount,
		ErrorMessage: l.ErrorMessage,
		ErrorHistory: []string(l.ErrorHistory),
		Response:     l.Response,
		NextRetryAt:  l.NextRetryAt,
		CreatedAt:    l.CreatedAt,
		UpdatedAt:    l.UpdatedAt,
	}
	if data := l.Payload.UserData; data != nil {
		item.Email = utils.MaskEmail(data.Email)
		item.Telefone = utils.MaskPhone(data.Telefone)
	}
	return item
}
