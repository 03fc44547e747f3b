package domain

// Capability names an operation the authorization gate can grant.
type Capability string

const (
	CapOrdersPlace         Capability = "orders:place"
	CapOrdersManage        Capability = "orders:manage"
	CapPrescriptionsUpload Capability = "prescriptions:upload"
	CapPrescriptionsReview Capability = "prescriptions:review"
	CapPrescriptionsSign   Capability = "prescriptions:approve"
	CapPaymentsCreate      Capability = "payments:create"
	CapPaymentsRefund      Capability = "payments:refund"
	CapStaffManage         Capability = "staff:manage"
	CapRolesManage         Capability = "roles:manage"
)

// Capabilities lists every capability the gate knows.
var Capabilities = []Capability{
	CapOrdersPlace,
	CapOrdersManage,
	CapPrescriptionsUpload,
	CapPrescriptionsReview,
	CapPrescriptionsSign,
	CapPaymentsCreate,
	CapPaymentsRefund,
	CapStaffManage,
	CapRolesManage,
}

// ParseCapability returns the capability named by s.
func ParseCapability(s string) (Capability, bool) {
	for _, c := range Capabilities {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}
