package observability

import "github.com/prometheus/client_golang/prometheus"

// OpsMetrics counts ledger operations. All methods are nil-safe so wiring
// metrics stays optional in tests.
type OpsMetrics struct {
	projectsRegistered prometheus.Counter
	deposits           prometheus.Counter
	releases           prometheus.Counter
	notifications      *prometheus.CounterVec
}

// NewOpsMetrics registers the ledger operation counters.
func NewOpsMetrics(registerer prometheus.Registerer) *OpsMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	projects := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pifp_projects_registered_total",
		Help: "Projects registered since start.",
	})
	deposits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pifp_deposits_total",
		Help: "Accepted deposits since start.",
	})
	releases := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pifp_releases_total",
		Help: "Verified releases since start.",
	})
	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pifp_notifications_total",
		Help: "Notifications emitted, partitioned by topic.",
	}, []string{"topic"})
	registerer.MustRegister(projects, deposits, releases, notifications)
	return &OpsMetrics{
		projectsRegistered: projects,
		deposits:           deposits,
		releases:           releases,
		notifications:      notifications,
	}
}

// ProjectRegistered counts one successful registration.
func (m *OpsMetrics) ProjectRegistered() {
	if m == nil {
		return
	}
	m.projectsRegistered.Inc()
}

// DepositAccepted counts one successful deposit.
func (m *OpsMetrics) DepositAccepted() {
	if m == nil {
		return
	}
	m.deposits.Inc()
}

// FundsReleased counts one verified release.
func (m *OpsMetrics) FundsReleased() {
	if m == nil {
		return
	}
	m.releases.Inc()
}

// NotificationEmitted counts one emitted notification.
func (m *OpsMetrics) NotificationEmitted(topic string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(topic).Inc()
}
