// Package viewstate содержит состояние экранов витрины.
//
// Каждый держатель публикует своё состояние через Watch и обновляет его
// из живых подписок в Run. Ошибки превращаются в сообщения для пользователя.
package viewstate

import (
	"errors"

	"github.com/mmeshcher/pastry-storefront/internal/model"
	"github.com/mmeshcher/pastry-storefront/internal/repository"
	"github.com/mmeshcher/pastry-storefront/internal/service"
	"github.com/mmeshcher/pastry-storefront/internal/session"
)

var (
	_ CatalogLoader      = (*repository.Products)(nil)
	_ CartAdder          = (*repository.Cart)(nil)
	_ CartEditor         = (*repository.Cart)(nil)
	_ OrderSubmitter     = (*service.Checkout)(nil)
	_ OrderFeed          = (*repository.Orders)(nil)
	_ Authenticator      = (*service.Auth)(nil)
	_ ActiveUserWatcher  = (*session.Holder)(nil)
	_ CurrentUserWatcher = (*repository.Users)(nil)
	_ AccountManager     = (*service.Auth)(nil)
)

var kindMessages = map[model.Kind]string{
	model.KindAuth:         "Compte introuvable ou mot de passe incorrect",
	model.KindDuplicate:    "Cet email est déjà utilisé",
	model.KindNotLoggedIn:  "Veuillez vous connecter pour continuer",
	model.KindNotFound:     "Élément introuvable",
	model.KindInvalidState: "Action impossible pour le statut actuel de la commande",
	model.KindConnectivity: "Serveur injoignable. Vérifiez votre connexion.",
	model.KindStorage:      "Une erreur est survenue. Veuillez réessayer.",
}

var validationMessages = map[string]string{
	"all fields are required":                  "Tous les champs sont obligatoires",
	"invalid email format":                     "Format d'email invalide",
	"phone must contain 8 digits":              "Le téléphone doit contenir 8 chiffres",
	"passwords do not match":                   "Les mots de passe ne correspondent pas",
	"password is too short":                    "Le mot de passe est trop court",
	"email and password are required":          "Email et mot de passe obligatoires",
	"shipping address is required":             "Veuillez saisir votre adresse de livraison",
	"card number must contain 16 valid digits": "Le numéro de carte doit contenir 16 chiffres",
	"cart is empty":                            "Votre panier est vide",
	"review is empty":                          "Le commentaire est vide",
	"unknown payment method":                   "Choisissez un mode de paiement",
	"name and email are required":              "Nom, prénom et email sont obligatoires",
}

var stateMessages = map[string]string{
	model.ErrCartChanged.Message:        "Votre panier a changé. Vérifiez le total et validez à nouveau.",
	model.ErrCheckoutInProgress.Message: "Commande en cours de validation",
}

// Message возвращает текст ошибки для пользователя. Для nil возвращает пустую строку.
func Message(err error) string {
	if err == nil {
		return ""
	}

	kind := model.KindOf(err)
	if kind == model.KindValidation {
		var e *model.Error
		if errors.As(err, &e) {
			if msg, ok := validationMessages[e.Message]; ok {
				return msg
			}
		}
		return "Données invalides"
	}
	if kind == model.KindInvalidState {
		var e *model.Error
		if errors.As(err, &e) {
			if msg, ok := stateMessages[e.Message]; ok {
				return msg
			}
		}
	}
	return kindMessages[kind]
}
