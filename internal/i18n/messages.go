package i18n

import (
	"errors"
	"net/http"

	"github.com/anot-platform/anot-client/internal/api"
	"github.com/anot-platform/anot-client/internal/plagiarism"
)

// Key identifies a catalog message.
type Key string

const (
	MsgGenericError   Key = "generic_error"
	MsgSessionExpired Key = "session_expired"
	MsgMissingFields  Key = "missing_fields"

	MsgPaymentSuccess   Key = "payment_success"
	MsgPaymentCancelled Key = "payment_cancelled"
	MsgPaymentError     Key = "payment_error"

	MsgRoleClient         Key = "role_client"
	MsgRoleJournalManager Key = "role_journal_manager"
	MsgRoleAccountant     Key = "role_accountant"
	MsgRoleAdmin          Key = "role_admin"
	MsgRoleWriter         Key = "role_writer"

	MsgJobPendingPayment Key = "job_pending_payment"
	MsgJobCompleted      Key = "job_completed"
	MsgJobFailed         Key = "job_failed"

	MsgApplicationPending  Key = "application_pending"
	MsgApplicationApproved Key = "application_approved"
	MsgApplicationRejected Key = "application_rejected"

	MsgArticlePending       Key = "article_pending"
	MsgArticleReviewing     Key = "article_reviewing"
	MsgArticleNeedsRevision Key = "article_needs_revision"
	MsgArticleAccepted      Key = "article_accepted"
	MsgArticleRejected      Key = "article_rejected"
	MsgArticlePublished     Key = "article_published"
)

type texts map[api.Language]string

var messages = map[Key]texts{
	MsgGenericError: {
		api.LanguageUz: "Xatolik yuz berdi. Iltimos, qaytadan urinib ko'ring.",
		api.LanguageRu: "Произошла ошибка. Пожалуйста, попробуйте ещё раз.",
		api.LanguageEn: "Something went wrong. Please try again.",
	},
	MsgSessionExpired: {
		api.LanguageUz: "Sessiya muddati tugadi. Iltimos, qaytadan kiring.",
		api.LanguageRu: "Сеанс истёк. Пожалуйста, войдите снова.",
		api.LanguageEn: "Your session has expired. Please sign in again.",
	},
	MsgMissingFields: {
		api.LanguageUz: "Barcha majburiy maydonlarni to'ldiring.",
		api.LanguageRu: "Заполните все обязательные поля.",
		api.LanguageEn: "Please fill in all required fields.",
	},

	MsgPaymentSuccess: {
		api.LanguageUz: "To'lov muvaffaqiyatli amalga oshirildi.",
		api.LanguageRu: "Оплата прошла успешно.",
		api.LanguageEn: "Payment completed successfully.",
	},
	MsgPaymentCancelled: {
		api.LanguageUz: "To'lov bekor qilindi.",
		api.LanguageRu: "Оплата отменена.",
		api.LanguageEn: "The payment was cancelled.",
	},
	MsgPaymentError: {
		api.LanguageUz: "To'lovda xatolik (kod %s).",
		api.LanguageRu: "Ошибка оплаты (код %s).",
		api.LanguageEn: "Payment failed (code %s).",
	},

	MsgRoleClient: {
		api.LanguageUz: "Muallif", api.LanguageRu: "Автор", api.LanguageEn: "Author",
	},
	MsgRoleJournalManager: {
		api.LanguageUz: "Muharrir", api.LanguageRu: "Редактор", api.LanguageEn: "Editor",
	},
	MsgRoleAccountant: {
		api.LanguageUz: "Buxgalter", api.LanguageRu: "Бухгалтер", api.LanguageEn: "Accountant",
	},
	MsgRoleAdmin: {
		api.LanguageUz: "Administrator", api.LanguageRu: "Администратор", api.LanguageEn: "Admin",
	},
	MsgRoleWriter: {
		api.LanguageUz: "Yozuvchi", api.LanguageRu: "Писатель", api.LanguageEn: "Writer",
	},

	MsgJobPendingPayment: {
		api.LanguageUz: "To'lov kutilmoqda", api.LanguageRu: "Ожидает оплаты", api.LanguageEn: "Awaiting payment",
	},
	MsgJobCompleted: {
		api.LanguageUz: "Yakunlangan", api.LanguageRu: "Завершено", api.LanguageEn: "Completed",
	},
	MsgJobFailed: {
		api.LanguageUz: "Muvaffaqiyatsiz", api.LanguageRu: "Не удалось", api.LanguageEn: "Failed",
	},

	MsgApplicationPending: {
		api.LanguageUz: "Kutilmoqda", api.LanguageRu: "На рассмотрении", api.LanguageEn: "Pending",
	},
	MsgApplicationApproved: {
		api.LanguageUz: "Tasdiqlangan", api.LanguageRu: "Одобрено", api.LanguageEn: "Approved",
	},
	MsgApplicationRejected: {
		api.LanguageUz: "Rad etilgan", api.LanguageRu: "Отклонено", api.LanguageEn: "Rejected",
	},

	MsgArticlePending: {
		api.LanguageUz: "Kutilmoqda", api.LanguageRu: "Ожидает", api.LanguageEn: "Pending",
	},
	MsgArticleReviewing: {
		api.LanguageUz: "Ko'rib chiqilmoqda", api.LanguageRu: "На рецензии", api.LanguageEn: "Under review",
	},
	MsgArticleNeedsRevision: {
		api.LanguageUz: "Qayta ishlash kerak", api.LanguageRu: "Требует доработки", api.LanguageEn: "Needs revision",
	},
	MsgArticleAccepted: {
		api.LanguageUz: "Qabul qilingan", api.LanguageRu: "Принято", api.LanguageEn: "Accepted",
	},
	MsgArticleRejected: {
		api.LanguageUz: "Rad etilgan", api.LanguageRu: "Отклонено", api.LanguageEn: "Rejected",
	},
	MsgArticlePublished: {
		api.LanguageUz: "Nashr etilgan", api.LanguageRu: "Опубликовано", api.LanguageEn: "Published",
	},
}

// Fallback is the generic message shown for API errors without a detail.
func (l *Localizer) Fallback() string {
	return l.Text(MsgGenericError)
}

// ErrorMessage turns an error into text fit for the user: the server's own
// detail when there is one, otherwise a localized generic message.
func (l *Localizer) ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, api.ErrSessionExpired) {
		return l.Text(MsgSessionExpired)
	}
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Detail != "" && apiErr.Detail != http.StatusText(apiErr.StatusCode) {
		return apiErr.Detail
	}
	return l.Fallback()
}

func (l *Localizer) Role(r api.Role) string {
	switch r {
	case api.RoleClient:
		return l.Text(MsgRoleClient)
	case api.RoleJournalManager:
		return l.Text(MsgRoleJournalManager)
	case api.RoleAccountant:
		return l.Text(MsgRoleAccountant)
	case api.RoleAdmin:
		return l.Text(MsgRoleAdmin)
	case api.RoleWriter:
		return l.Text(MsgRoleWriter)
	}
	return string(r)
}

func (l *Localizer) JobStatus(s plagiarism.Status) string {
	switch s {
	case plagiarism.StatusPendingPayment:
		return l.Text(MsgJobPendingPayment)
	case plagiarism.StatusCompleted:
		return l.Text(MsgJobCompleted)
	case plagiarism.StatusFailed:
		return l.Text(MsgJobFailed)
	}
	return string(s)
}

func (l *Localizer) ApplicationStatus(s api.ApplicationStatus) string {
	switch s {
	case api.ApplicationPending:
		return l.Text(MsgApplicationPending)
	case api.ApplicationApproved:
		return l.Text(MsgApplicationApproved)
	case api.ApplicationRejected:
		return l.Text(MsgApplicationRejected)
	}
	return string(s)
}

func (l *Localizer) ArticleStatus(s api.ArticleStatus) string {
	switch s {
	case api.ArticleStatusPending:
		return l.Text(MsgArticlePending)
	case api.ArticleStatusReviewing:
		return l.Text(MsgArticleReviewing)
	case api.ArticleStatusNeedsRevision:
		return l.Text(MsgArticleNeedsRevision)
	case api.ArticleStatusAccepted:
		return l.Text(MsgArticleAccepted)
	case api.ArticleStatusRejected:
		return l.Text(MsgArticleRejected)
	case api.ArticleStatusPublished:
		return l.Text(MsgArticlePublished)
	}
	return string(s)
}
