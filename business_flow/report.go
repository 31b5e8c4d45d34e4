package businessflow

import (
	"strconv"
	"strings"
	"time"

	"github.com/coracaovalente/instituto-integration/models"
	"github.com/xuri/excelize/v2"
)

const deliveryLogSheet = "delivery_logs"

var deliveryLogHeader = []string{
	"id", "user_id", "status", "email", "telefone", "attempt_count",
	"error_message", "error_history", "next_retry_at", "created_at", "updated_at",
}

// BuildDeliveryLogWorkbook writes one masked row per log under a header row
func BuildDeliveryLogWorkbook(rows []*models.DeliveryLog) ([]byte, error) {
	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	if err := xl.SetSheetName(xl.GetSheetName(0), deliveryLogSheet); err != nil {
		return nil, err
	}
	if err := xl.SetSheetRow(deliveryLogSheet, "A1", &deliveryLogHeader); err != nil {
		return nil, err
	}

	for i, row := range rows {
		item := ToDeliveryLogItem(row)
		errMsg := ""
		if item.ErrorMessage != nil {
			errMsg = *item.ErrorMessage
		}
		nextRetry := ""
		if item.NextRetryAt != nil {
			nextRetry = item.NextRetryAt.UTC().Format(time.RFC3339)
		}
		record := []string{
			item.ID.String(),
			item.UserID,
			item.Status,
			item.Email,
			item.Telefone,
			strconv.Itoa(item.AttemptCount),
			errMsg,
			strings.Join(item.ErrorHistory, " | "),
			nextRetry,
			item.CreatedAt.UTC().Format(time.RFC3339),
			item.UpdatedAt.UTC().Format(time.RFC3339),
		}
		cellRef, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := xl.SetSheetRow(deliveryLogSheet, cellRef, &record); err != nil {
			return nil, err
		}
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
