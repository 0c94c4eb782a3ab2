package taskname

const (
	// Booking tasks
	BookingExpiryRun = "booking:expiry:run"

	// Notification events consumed by the notifier collaborator
	NotifyBookingStatus = "notify:booking:status"
	NotifyBalanceChange = "notify:points:balance"
)
