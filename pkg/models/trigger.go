package models

// Built-in trigger event names dispatched by the SDK itself.
const (
	TriggerUserBootApp         = "USER_BOOT_APP"
	TriggerUserEnterToApp      = "USER_ENTER_TO_APP"
	TriggerUserEnterFirstly    = "USER_ENTER_TO_APP_FIRSTLY"
	TriggerUserEnterForeground = "USER_ENTER_TO_FOREGROUND"
	TriggerUserDismissModal    = "USER_DISMISS_MODAL"
	TriggerRetention1          = "RETENTION_1"
	TriggerRetention2To3       = "RETENTION_2_3"
	TriggerRetention4To7       = "RETENTION_4_7"
	TriggerRetention8To14      = "RETENTION_8_14"
	TriggerRetention15         = "RETENTION_15"
	TriggerErrorRecord         = "N_ERROR_RECORD"
	TriggerErrorInSDKRecord    = "N_ERROR_IN_SDK_RECORD"
)
