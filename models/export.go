package models

import (
	"context"
	"fmt"
	"io"

	"github.com/btpflow/worksite_backend/config"
	"github.com/btpflow/worksite_backend/utils"
	"github.com/xuri/excelize/v2"
)

type equipmentExportRow struct {
	Identifier string
	Name       string
	Type       string
	Status     string
	SiteName   *string
	TotalHours string
}

func getEquipmentExportRows(ctx context.Context) ([]*equipmentExportRow, error) {

	sql := `
SELECT
    equipment.identifier,
    equipment.name,
    equipment.type,
    equipment.status,
    sites.name AS site_name,
    equipment.total_hours
FROM
    equipment
    LEFT JOIN sites ON sites.id = equipment.current_site_id
ORDER BY
    equipment.identifier;
`

	var records []*equipmentExportRow
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql).Scan(&records).Error; err != nil {
		return nil, err
	}

	return records, nil
}

// ExportEquipmentExcel writes the full inventory as an xlsx workbook. The
// inventory is global, so the same visibility rule as the list endpoint
// applies.
func ExportEquipmentExcel(ctx context.Context, w io.Writer) error {
	principal, err := PrincipalFromContext(ctx)
	if err != nil {
		return err
	}
	if !CanViewEquipment(principal) {
		return utils.ErrorForbidden
	}

	data, err := getEquipmentExportRows(ctx)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	sheetName := "Sheet1"
	if _, err := f.NewSheet(sheetName); err != nil {
		return err
	}

	// Add headers
	f.SetCellValue(sheetName, "A1", "Identifier")
	f.SetCellValue(sheetName, "B1", "Name")
	f.SetCellValue(sheetName, "C1", "Type")
	f.SetCellValue(sheetName, "D1", "Status")
	f.SetCellValue(sheetName, "E1", "CurrentSite")
	f.SetCellValue(sheetName, "F1", "TotalHours")

	// Add data
	for i, d := range data {
		f.SetCellValue(sheetName, "A"+fmt.Sprint(i+2), d.Identifier)
		f.SetCellValue(sheetName, "B"+fmt.Sprint(i+2), d.Name)
		f.SetCellValue(sheetName, "C"+fmt.Sprint(i+2), d.Type)
		f.SetCellValue(sheetName, "D"+fmt.Sprint(i+2), d.Status)
		f.SetCellValue(sheetName, "E"+fmt.Sprint(i+2), utils.DereferencePtr(d.SiteName, ""))
		f.SetCellValue(sheetName, "F"+fmt.Sprint(i+2), d.TotalHours)
	}

	return f.Write(w)
}
