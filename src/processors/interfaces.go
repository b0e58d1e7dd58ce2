package processors

import (
	"github.com/username/tradeclean/src/models"
)

// PLProcessor computes realized P/L per Description from a canonical table.
type PLProcessor interface {
	Aggregate(table *models.Table) ([]models.PLSummaryRow, error)
}
